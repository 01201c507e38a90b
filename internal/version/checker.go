package version

import "time"

// CheckCached returns the update status for the running version, reusing the
// on-disk cache when it is still fresh. Network failures are not cached so
// the next invocation retries.
func CheckCached(currentVersion string) CheckResult {
	if cached, err := LoadCache(); err == nil && IsCacheValid(cached, currentVersion) {
		return CheckResult{
			HasUpdate:      cached.HasUpdate,
			LatestVersion:  cached.LatestVersion,
			CurrentVersion: currentVersion,
		}
	}

	result := Check(currentVersion)
	if result.Error == nil {
		_ = SaveCache(&CacheEntry{
			LatestVersion:  result.LatestVersion,
			CurrentVersion: currentVersion,
			CheckedAt:      time.Now(),
			HasUpdate:      result.HasUpdate,
		})
	}
	return result
}
