package notify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/notify/mocks"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync/state"
)

type policyFixture struct {
	policy  *notify.Policy
	configs *notify.ConfigStore
	jobs    state.JobService
	channel *mocks.MockChannel
	clock   *testingclock.FakeClock
}

func newPolicyFixture(t *testing.T, cfg notify.Config) *policyFixture {
	t.Helper()

	fc := testingclock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := store.NewMemoryStore(store.WithClock(fc))
	keys := store.NewKeys("")
	configs := notify.NewConfigStore(s, keys)
	require.NoError(t, configs.Save(context.Background(), cfg))

	jobs := state.NewStoreJobService(s, keys, state.WithClock(fc))
	channel := mocks.NewMockChannel(gomock.NewController(t))

	return &policyFixture{
		policy:  notify.NewPolicy(configs, jobs, channel, notify.WithClock(fc)),
		configs: configs,
		jobs:    jobs,
		channel: channel,
		clock:   fc,
	}
}

func enabledConfig() notify.Config {
	return notify.Config{
		Enabled:          true,
		EmailRecipients:  []string{"oncall@example.com"},
		ChatWebhookURL:   "https://chat.example.com/hooks/abc",
		FailureThreshold: 3,
	}
}

func TestPolicy_EvaluateBatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        notify.Config
		outcome    notify.BatchOutcome
		recipients []string
		wantScope  string
		wantTo     []string
	}{
		{
			name:      "failures send exactly one notification",
			cfg:       enabledConfig(),
			outcome:   notify.BatchOutcome{BatchID: "b1", FailureCount: 2, TotalProcessed: 5},
			wantScope: notify.ScopeBatch,
			wantTo:    []string{"oncall@example.com"},
		},
		{
			name:       "explicit recipients override configured ones",
			cfg:        enabledConfig(),
			outcome:    notify.BatchOutcome{BatchID: "b2", FailureCount: 1, TotalProcessed: 1},
			recipients: []string{"lead@example.com"},
			wantScope:  notify.ScopeBatch,
			wantTo:     []string{"lead@example.com"},
		},
		{
			name:    "no failures and success notifications disabled",
			cfg:     enabledConfig(),
			outcome: notify.BatchOutcome{BatchID: "b3", TotalProcessed: 5},
		},
		{
			name: "no failures with success notifications enabled",
			cfg: func() notify.Config {
				c := enabledConfig()
				c.SuccessNotificationsEnabled = true
				return c
			}(),
			outcome:   notify.BatchOutcome{BatchID: "b4", TotalProcessed: 5},
			wantScope: notify.ScopeBatchSuccess,
			wantTo:    []string{"oncall@example.com"},
		},
		{
			name:    "disabled config never notifies",
			cfg:     notify.Config{Enabled: false, EmailRecipients: []string{"oncall@example.com"}},
			outcome: notify.BatchOutcome{BatchID: "b5", FailureCount: 4, TotalProcessed: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newPolicyFixture(t, tt.cfg)
			if tt.wantScope != "" {
				f.channel.EXPECT().Send(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, msg notify.Message) error {
						assert.Equal(t, tt.wantScope, msg.Scope)
						assert.Equal(t, tt.outcome.BatchID, msg.BatchID)
						assert.Equal(t, tt.outcome.FailureCount, msg.FailureCount)
						assert.Equal(t, tt.outcome.TotalProcessed, msg.TotalProcessed)
						assert.Equal(t, tt.wantTo, msg.Recipients)
						assert.Equal(t, tt.cfg.ChatWebhookURL, msg.WebhookURL)
						return nil
					}).Times(1)
			}

			f.policy.EvaluateBatch(context.Background(), tt.outcome, tt.recipients)
		})
	}
}

func TestPolicy_EvaluateBatch_DeliveryErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t, enabledConfig())
	f.channel.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

	assert.NotPanics(t, func() {
		f.policy.EvaluateBatch(context.Background(),
			notify.BatchOutcome{BatchID: "b1", FailureCount: 1, TotalProcessed: 1}, nil)
	})
}

func TestPolicy_EvaluateRepositoryFailure_FiresAtThreshold(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t, enabledConfig())
	ctx := context.Background()
	const repo = "acme/api"

	var sent []notify.Message
	f.channel.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notify.Message) error {
			sent = append(sent, msg)
			return nil
		}).AnyTimes()

	for i := 1; i <= 3; i++ {
		require.NoError(t, f.jobs.RecordFailure(ctx, repo, fmt.Sprintf("job-%d", i), f.clock.Now()))
		f.policy.EvaluateRepositoryFailure(ctx, repo, "upstream returned 502", "batch-1")
		if i < 3 {
			assert.Empty(t, sent, "no notification expected after failure %d", i)
		}
		f.clock.Step(time.Hour)
	}

	require.Len(t, sent, 1)
	assert.Equal(t, notify.ScopeRepository, sent[0].Scope)
	assert.Equal(t, repo, sent[0].RepositoryID)
	assert.Equal(t, 3, sent[0].FailureCount)
	assert.Equal(t, "batch-1", sent[0].BatchID)
	assert.Contains(t, sent[0].Body, "upstream returned 502")
}

func TestPolicy_EvaluateRepositoryFailure_IgnoresOldFailures(t *testing.T) {
	t.Parallel()

	f := newPolicyFixture(t, enabledConfig())
	ctx := context.Background()
	const repo = "acme/web"

	require.NoError(t, f.jobs.RecordFailure(ctx, repo, "j1", f.clock.Now()))
	require.NoError(t, f.jobs.RecordFailure(ctx, repo, "j2", f.clock.Now()))
	f.clock.Step(25 * time.Hour)
	require.NoError(t, f.jobs.RecordFailure(ctx, repo, "j3", f.clock.Now()))

	// gomock fails the test on any unexpected Send
	f.policy.EvaluateRepositoryFailure(ctx, repo, "timeout", "")
}

func TestPolicy_EvaluateRepositoryFailure_UsesConfiguredThreshold(t *testing.T) {
	t.Parallel()

	cfg := enabledConfig()
	cfg.FailureThreshold = 1
	f := newPolicyFixture(t, cfg)
	ctx := context.Background()

	f.channel.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, f.jobs.RecordFailure(ctx, "acme/cli", "j1", f.clock.Now()))
	f.policy.EvaluateRepositoryFailure(ctx, "acme/cli", "boom", "")
}
