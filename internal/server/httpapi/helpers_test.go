package httpapi

import "github.com/dmitrijs2005/loadgate/internal/server/repositories/jobs"

func jobsFilter() jobs.ListFilter {
	return jobs.ListFilter{Limit: 100}
}
