package models

import (
	"github.com/ghoridigital/secretcodes_backend/config"
)

// LiveRefreshChannel is the Redis pub/sub channel live dashboards subscribe to.
const LiveRefreshChannel = "secret_codes_refresh"

// NotifyLiveRefresh broadcasts that records of the given entity changed.
// The payload only names the entity; observers re-query on their own.
func NotifyLiveRefresh(entity string) {
	logger := config.GetLogger()
	err := config.PublishLiveRefresh(LiveRefreshChannel, "secret_codes_refresh", map[string]string{"model": entity})
	if err != nil {
		config.LogError(logger, "liveRefresh.go", "NotifyLiveRefresh", entity, nil, err)
	}
}
