package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLoginAttemptsTotal_ByOutcome(t *testing.T) {
	before := testutil.ToFloat64(LoginAttemptsTotal.WithLabelValues("locked"))
	LoginAttemptsTotal.WithLabelValues("locked").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(LoginAttemptsTotal.WithLabelValues("locked")))
}

func TestObserveHash(t *testing.T) {
	ObserveHash(20 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(PasswordHashDuration))
}
