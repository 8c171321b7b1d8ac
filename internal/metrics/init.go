package metrics

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range []string{
		"insert", "exists_filename", "exists_hash",
		"get_by_filepath", "get_by_id", "get_all",
		"count_where", "select_where", "ids_for_sidecar",
		"update_tags", "update_bioclip_taxonomy", "update_geo_hierarchy",
		"update_title", "update_description", "update_rating",
		"update_color_label", "update_metadata", "update_embedding",
		"update_scores", "update_sync_state", "delete", "delete_batch",
		"stats", "vacuum",
	} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, status := range []string{"success", "error", "duplicate", "skipped"} {
		IngestFilesTotal.WithLabelValues(status)
	}

	for _, op := range []string{"extract", "read_tags", "write_tags", "extract_binary"} {
		ExiftoolInvocationsTotal.WithLabelValues(op, "success")
		ExiftoolInvocationsTotal.WithLabelValues(op, "error")
		ExiftoolInvocationsTotal.WithLabelValues(op, "timeout")
		ExiftoolDuration.WithLabelValues(op)
	}

	for _, target := range []string{"embedded", "sidecar"} {
		SyncWritesTotal.WithLabelValues(target, "success")
		SyncWritesTotal.WithLabelValues(target, "error")
	}

	for _, mode := range []string{"semantic", "tags"} {
		SearchQueriesTotal.WithLabelValues(mode, "success")
		SearchQueriesTotal.WithLabelValues(mode, "error")
		SearchDuration.WithLabelValues(mode)
		SearchCandidates.WithLabelValues(mode)
	}

	for _, event := range []string{"create", "write", "remove", "rename", "chmod", "unknown"} {
		WatcherEventsTotal.WithLabelValues(event)
	}

	BadgeRefreshesTotal.WithLabelValues("success")
	BadgeRefreshesTotal.WithLabelValues("error")
}
