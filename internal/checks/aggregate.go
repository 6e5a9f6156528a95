package checks

// FromStatus converts a legacy commit status into a [RefCheck].
//
// "success" maps to completed/success, "pending" to in_progress, and every
// other state ("failure", "error") to completed/failure.
func FromStatus(item StatusItem) RefCheck {
	check := RefCheck{
		Name:        item.Context,
		Description: item.Description,
	}

	switch item.State {
	case "success":
		check.Status = StatusCompleted
		check.Conclusion = ConclusionSuccess
	case "pending":
		check.Status = StatusInProgress
	default:
		check.Status = StatusCompleted
		check.Conclusion = ConclusionFailure
	}

	return check
}

// FromCheckRun converts a check run into a [RefCheck]. The description is
// the output title, falling back to the conclusion and then the status.
func FromCheckRun(run CheckRun) RefCheck {
	description := run.OutputTitle
	if description == "" {
		description = string(run.Conclusion)
	}
	if description == "" {
		description = string(run.Status)
	}

	return RefCheck{
		Name:        run.Name,
		Description: description,
		Status:      run.Status,
		Conclusion:  run.Conclusion,
	}
}

// LatestByName keeps only the run with the highest check suite id for each
// name. Output order follows the first appearance of each name; on equal
// suite ids the first run seen wins.
func LatestByName(runs []CheckRun) []CheckRun {
	if len(runs) == 0 {
		return nil
	}

	index := make(map[string]int, len(runs))
	latest := make([]CheckRun, 0, len(runs))

	for _, run := range runs {
		i, seen := index[run.Name]
		if !seen {
			index[run.Name] = len(latest)
			latest = append(latest, run)
			continue
		}
		if latest[i].SuiteID < run.SuiteID {
			latest[i] = run
		}
	}

	return latest
}

// Aggregate converts and combines both payloads. Either payload may be nil
// when its fetch failed; callers must not call Aggregate when both are nil,
// since that is a failed refresh rather than "no checks".
func Aggregate(statuses *CombinedRefStatus, runs *CheckRunList) *Combined {
	var refChecks []RefCheck

	if statuses != nil {
		for _, item := range statuses.Statuses {
			refChecks = append(refChecks, FromStatus(item))
		}
	}

	if runs != nil {
		for _, run := range LatestByName(runs.CheckRuns) {
			refChecks = append(refChecks, FromCheckRun(run))
		}
	}

	return Combine(refChecks)
}

// Combine reduces a list of checks to a single [Combined] value.
//
//   - no checks: nil ("no status for this ref")
//   - one check: its status and conclusion are mirrored
//   - any incomplete or failed check: completed/failure
//   - all checks successful: completed/success
//   - otherwise: in_progress
func Combine(refChecks []RefCheck) *Combined {
	switch len(refChecks) {
	case 0:
		return nil
	case 1:
		c := refChecks[0]
		return &Combined{Status: c.Status, Conclusion: c.Conclusion, Checks: refChecks}
	}

	anyBad := false
	allGood := true
	for _, c := range refChecks {
		if IsIncompleteOrFailure(c) {
			anyBad = true
			break
		}
		if !IsSuccess(c) {
			allGood = false
		}
	}

	switch {
	case anyBad:
		return &Combined{Status: StatusCompleted, Conclusion: ConclusionFailure, Checks: refChecks}
	case allGood:
		return &Combined{Status: StatusCompleted, Conclusion: ConclusionSuccess, Checks: refChecks}
	default:
		return &Combined{Status: StatusInProgress, Checks: refChecks}
	}
}

// IsIncompleteOrFailure reports whether the check is incomplete or failed.
func IsIncompleteOrFailure(c RefCheck) bool {
	return IsIncomplete(c) || IsFailure(c)
}

// IsIncomplete reports whether a completed check never produced a real
// outcome because it timed out, went stale or was cancelled.
func IsIncomplete(c RefCheck) bool {
	if c.Status != StatusCompleted {
		return false
	}
	switch c.Conclusion {
	case ConclusionTimedOut, ConclusionStale, ConclusionCancelled:
		return true
	}
	return false
}

// IsFailure reports whether the check failed or requires action.
func IsFailure(c RefCheck) bool {
	if c.Status != StatusCompleted {
		return false
	}
	switch c.Conclusion {
	case ConclusionFailure, ConclusionActionRequired:
		return true
	}
	return false
}

// IsSuccess reports whether the check succeeded, was neutral or was skipped.
func IsSuccess(c RefCheck) bool {
	if c.Status != StatusCompleted {
		return false
	}
	switch c.Conclusion {
	case ConclusionSuccess, ConclusionNeutral, ConclusionSkipped:
		return true
	}
	return false
}
