package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	success    = RefCheck{Name: "ok", Status: StatusCompleted, Conclusion: ConclusionSuccess}
	failure    = RefCheck{Name: "bad", Status: StatusCompleted, Conclusion: ConclusionFailure}
	inProgress = RefCheck{Name: "wip", Status: StatusInProgress}
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name           string
		checks         []RefCheck
		wantNil        bool
		wantStatus     Status
		wantConclusion Conclusion
	}{
		{name: "no checks", checks: nil, wantNil: true},
		{name: "single check is mirrored", checks: []RefCheck{inProgress}, wantStatus: StatusInProgress},
		{name: "single failure is mirrored", checks: []RefCheck{failure}, wantStatus: StatusCompleted, wantConclusion: ConclusionFailure},
		{name: "success and failure", checks: []RefCheck{success, failure}, wantStatus: StatusCompleted, wantConclusion: ConclusionFailure},
		{name: "all success", checks: []RefCheck{success, success}, wantStatus: StatusCompleted, wantConclusion: ConclusionSuccess},
		{name: "success and in progress", checks: []RefCheck{success, inProgress}, wantStatus: StatusInProgress},
		{
			name: "neutral and skipped count as success",
			checks: []RefCheck{
				{Status: StatusCompleted, Conclusion: ConclusionNeutral},
				{Status: StatusCompleted, Conclusion: ConclusionSkipped},
			},
			wantStatus:     StatusCompleted,
			wantConclusion: ConclusionSuccess,
		},
		{
			name:           "timed out beats in progress",
			checks:         []RefCheck{inProgress, {Status: StatusCompleted, Conclusion: ConclusionTimedOut}},
			wantStatus:     StatusCompleted,
			wantConclusion: ConclusionFailure,
		},
		{
			name:           "action required is a failure",
			checks:         []RefCheck{success, {Status: StatusCompleted, Conclusion: ConclusionActionRequired}},
			wantStatus:     StatusCompleted,
			wantConclusion: ConclusionFailure,
		},
		{
			name:           "cancelled is incomplete",
			checks:         []RefCheck{success, {Status: StatusCompleted, Conclusion: ConclusionCancelled}},
			wantStatus:     StatusCompleted,
			wantConclusion: ConclusionFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(tt.checks)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantConclusion, got.Conclusion)
			assert.Equal(t, tt.checks, got.Checks)
		})
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		state          string
		wantStatus     Status
		wantConclusion Conclusion
	}{
		{"success", StatusCompleted, ConclusionSuccess},
		{"pending", StatusInProgress, ConclusionNone},
		{"failure", StatusCompleted, ConclusionFailure},
		{"error", StatusCompleted, ConclusionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got := FromStatus(StatusItem{Context: "ci/legacy", State: tt.state, Description: "desc"})
			assert.Equal(t, "ci/legacy", got.Name)
			assert.Equal(t, "desc", got.Description)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantConclusion, got.Conclusion)
		})
	}
}

func TestFromCheckRun_Description(t *testing.T) {
	withTitle := FromCheckRun(CheckRun{Name: "build", Status: StatusCompleted, Conclusion: ConclusionSuccess, OutputTitle: "All good"})
	assert.Equal(t, "All good", withTitle.Description)

	noTitle := FromCheckRun(CheckRun{Name: "build", Status: StatusCompleted, Conclusion: ConclusionFailure})
	assert.Equal(t, "failure", noTitle.Description)

	pending := FromCheckRun(CheckRun{Name: "build", Status: StatusQueued})
	assert.Equal(t, "queued", pending.Description)
}

func TestLatestByName(t *testing.T) {
	runs := []CheckRun{
		{Name: "build", SuiteID: 1, Status: StatusCompleted, Conclusion: ConclusionFailure},
		{Name: "lint", SuiteID: 1, Status: StatusCompleted, Conclusion: ConclusionSuccess},
		{Name: "build", SuiteID: 2, Status: StatusCompleted, Conclusion: ConclusionSuccess},
	}

	got := LatestByName(runs)
	require.Len(t, got, 2)
	assert.Equal(t, "build", got[0].Name)
	assert.Equal(t, int64(2), got[0].SuiteID)
	assert.Equal(t, "lint", got[1].Name)
}

func TestLatestByName_OlderSuiteIgnored(t *testing.T) {
	runs := []CheckRun{
		{Name: "build", SuiteID: 2, Conclusion: ConclusionSuccess},
		{Name: "build", SuiteID: 1, Conclusion: ConclusionFailure},
	}

	got := LatestByName(runs)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].SuiteID)
}

func TestAggregate_DedupsCheckRuns(t *testing.T) {
	runs := &CheckRunList{CheckRuns: []CheckRun{
		{Name: "build", SuiteID: 1, Status: StatusCompleted, Conclusion: ConclusionFailure},
		{Name: "build", SuiteID: 2, Status: StatusCompleted, Conclusion: ConclusionSuccess},
	}}

	got := Aggregate(nil, runs)
	require.NotNil(t, got)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, ConclusionSuccess, got.Conclusion)
	require.Len(t, got.Checks, 1)
}

func TestAggregate_MixesLegacyAndCheckRuns(t *testing.T) {
	statuses := &CombinedRefStatus{Statuses: []StatusItem{{Context: "ci", State: "pending"}}}
	runs := &CheckRunList{CheckRuns: []CheckRun{{Name: "build", SuiteID: 1, Status: StatusCompleted, Conclusion: ConclusionSuccess}}}

	got := Aggregate(statuses, runs)
	require.NotNil(t, got)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, ConclusionNone, got.Conclusion)
	require.Len(t, got.Checks, 2)
	assert.Equal(t, "ci", got.Checks[0].Name)
}

func TestAggregate_EmptyPayloadsMeanNoChecks(t *testing.T) {
	assert.Nil(t, Aggregate(&CombinedRefStatus{}, &CheckRunList{}))
}

func TestParseStatusAndConclusion(t *testing.T) {
	s, err := ParseStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseStatus("waiting")
	assert.Error(t, err)

	c, err := ParseConclusion("")
	require.NoError(t, err)
	assert.Equal(t, ConclusionNone, c)

	_, err = ParseConclusion("exploded")
	assert.Error(t, err)
}
