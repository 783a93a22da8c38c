package memengine

import (
	"strconv"
	"time"

	"github.com/jonathangreen/circulation/circulation"
)

func (s *LedgerStore) logPersisted(state *circulation.PoolState) {
	if s.logger == nil {
		return
	}

	s.logger.Debug(
		logMsgStatePersisted,
		logAttrPoolID, state.Pool.ID.String(),
		logAttrLoans, len(state.Loans),
		logAttrHolds, len(state.Holds),
	)
}

func (s *LedgerStore) recordLockDuration(duration time.Duration, persisted bool) {
	if s.metricsCollector == nil {
		return
	}

	s.metricsCollector.RecordDuration(metricPoolLockDuration, duration, map[string]string{
		labelPersisted: strconv.FormatBool(persisted),
	})
}
