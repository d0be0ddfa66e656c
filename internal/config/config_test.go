package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRobotDefaults(t *testing.T) {
	t.Setenv("ROBOT_APPROVED_USERS", "")
	t.Setenv("ROBOT_TIME_BUDGET", "")
	t.Setenv("MAX_RETRY_COUNT", "")

	r, err := LoadRobot()
	require.NoError(t, err)
	assert.Equal(t, "Folkeregisterbøder", r.QueueName)
	assert.Equal(t, 1000, r.MaxIterations)
	assert.Equal(t, 60*time.Minute, r.TimeBudget)
	assert.Equal(t, 10*time.Minute, r.InvoiceCooldown)
	assert.Equal(t, 3, r.MaxRetries)
	assert.Empty(t, r.ApprovedUsers)
	assert.Equal(t, 818485, r.Nova.Department.ID)
	assert.Equal(t, "Indbakke/Folkeregisterbøder", r.Graph.Folder)
}

func TestLoadRobotOverrides(t *testing.T) {
	t.Setenv("ROBOT_APPROVED_USERS", " AZ1 , az2,,")
	t.Setenv("ROBOT_TIME_BUDGET", "30")
	t.Setenv("ROBOT_INVOICE_COOLDOWN", "90s")
	t.Setenv("NOVA_POLL_ATTEMPTS", "7")
	t.Setenv("DP_ENCRYPTION_KEY", `{"kid":"x"}`)

	r, err := LoadRobot()
	require.NoError(t, err)
	assert.Equal(t, []string{"AZ1", "az2"}, r.ApprovedUsers)
	assert.Equal(t, 30*time.Minute, r.TimeBudget)
	assert.Equal(t, 90*time.Second, r.InvoiceCooldown)
	assert.Equal(t, uint64(7), r.Nova.PollAttempts)
	assert.JSONEq(t, `{"kid":"x"}`, string(r.DigitalPost.EncryptionKey))
}

func TestLoadRobotCollectsErrors(t *testing.T) {
	t.Setenv("ROBOT_MAX_ITERATIONS", "many")
	t.Setenv("SMTP_PORT", "0x")
	t.Setenv("DP_ENCRYPTION_KEY", "{")
	t.Setenv("MAX_RETRY_COUNT", "0")

	_, err := LoadRobot()
	require.Error(t, err)
	for _, k := range []string{"ROBOT_MAX_ITERATIONS", "SMTP_PORT", "DP_ENCRYPTION_KEY", "MAX_RETRY_COUNT"} {
		assert.Contains(t, err.Error(), k)
	}
}
