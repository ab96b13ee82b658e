package main

import (
	"testing"

	"github.com/ghostrelay/controlplane/internal/config"
	"github.com/ghostrelay/controlplane/internal/notify"
	"github.com/ghostrelay/controlplane/internal/ratelimit"
	"github.com/ghostrelay/controlplane/internal/reqvalidate"
	"github.com/stretchr/testify/assert"
)

func TestBuildNotifier_NoopWhenWebhookUnset(t *testing.T) {
	n := buildNotifier(&config.Config{})
	_, ok := n.(notify.NoopNotifier)
	assert.True(t, ok)
}

func TestBuildNotifier_SlackWhenWebhookSet(t *testing.T) {
	n := buildNotifier(&config.Config{SlackWebhookURL: "https://hooks.example.com/x"})
	_, ok := n.(*notify.SlackNotifier)
	assert.True(t, ok)
}

func TestRateLimitStore_MemoryByDefault(t *testing.T) {
	s := rateLimitStore(&config.Config{})
	_, ok := s.(*ratelimit.MemoryStore)
	assert.True(t, ok)
}

func TestRateLimitStore_RedisWhenAddrSet(t *testing.T) {
	s := rateLimitStore(&config.Config{RedisAddr: "localhost:6379"})
	_, ok := s.(*ratelimit.RedisStore)
	assert.True(t, ok)
}

func TestBuildValidator_RegistersKnownTypes(t *testing.T) {
	v := buildValidator()

	report := v.Validate("webhook", map[string]any{}, reqvalidate.LevelStrict)
	assert.False(t, report.IsValid)

	report = v.Validate("summary", map[string]any{"id": "x"}, reqvalidate.LevelStrict)
	assert.True(t, report.IsValid)
}
