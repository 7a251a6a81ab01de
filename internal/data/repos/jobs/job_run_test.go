package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	jobrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/jobs"
	"github.com/warungdigital/leadbot-backend/internal/data/repos/testutil"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
)

func setup(t *testing.T) (dbctx.Context, jobrepo.JobRunRepo) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.WithTx(context.Background(), tx)
	return dbc, jobrepo.NewJobRunRepo(db, testutil.Logger(t), jobrepo.DefaultPolicies())
}

func TestEnqueueAndClaim(t *testing.T) {
	dbc, repo := setup(t)

	job, err := repo.Enqueue(dbc, types.QueueOperatorNotify, "operator_notify", map[string]string{"kind": "new_lead"})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != types.JobStatusQueued || job.Attempts != 0 {
		t.Fatalf("enqueued job = %+v", job)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if claimed == nil {
		t.Fatal("runnable job not claimed")
	}
	if claimed.ID != job.ID || claimed.Status != types.JobStatusRunning || claimed.Attempts != 1 {
		t.Fatalf("claimed = %+v", claimed)
	}

	// the running job must not be claimable again
	again, err := repo.ClaimNextRunnable(dbc, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Fatalf("running job claimed twice: %+v", again)
	}

	if err := repo.MarkSucceeded(dbc, claimed.ID); err != nil {
		t.Fatal(err)
	}
	n, err := repo.CountByStatus(dbc, types.QueueOperatorNotify, types.JobStatusSucceeded)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("succeeded count = %d", n)
	}
}

func TestMarkFailedRequeuesWithBackoff(t *testing.T) {
	dbc, repo := setup(t)

	if _, err := repo.Enqueue(dbc, types.QueueSpreadsheetSync, "spreadsheet_sync", map[string]string{"lead_id": "x"}); err != nil {
		t.Fatal(err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	if err := repo.MarkFailed(dbc, claimed, errors.New("sheet unavailable")); err != nil {
		t.Fatal(err)
	}

	// the job is queued again in the future, so it is not yet claimable
	notYet, err := repo.ClaimNextRunnable(dbc, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if notYet != nil {
		t.Fatalf("backed-off job claimed immediately: %+v", notYet)
	}

	n, err := repo.CountByStatus(dbc, types.QueueSpreadsheetSync, types.JobStatusQueued)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("queued count = %d", n)
	}
}

func TestMarkFailedTerminalAtCap(t *testing.T) {
	dbc, repo := setup(t)

	job, err := repo.Enqueue(dbc, types.QueueOperatorNotify, "operator_notify", map[string]string{"kind": "escalation"})
	if err != nil {
		t.Fatal(err)
	}

	// operator-notify allows 3 attempts
	job.Attempts = 3
	if err := repo.MarkFailed(dbc, job, errors.New("telegram down")); err != nil {
		t.Fatal(err)
	}

	n, err := repo.CountByStatus(dbc, types.QueueOperatorNotify, types.JobStatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("failed count = %d", n)
	}
	claimed, err := repo.ClaimNextRunnable(dbc, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if claimed != nil {
		t.Fatalf("terminally failed job claimed: %+v", claimed)
	}
}

func TestStaleRunningReclaim(t *testing.T) {
	dbc, repo := setup(t)

	if _, err := repo.Enqueue(dbc, types.QueueOperatorNotify, "operator_notify", map[string]string{}); err != nil {
		t.Fatal(err)
	}
	claimed, err := repo.ClaimNextRunnable(dbc, time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	// with a very small stale window the running job becomes claimable again
	time.Sleep(20 * time.Millisecond)
	reclaimed, err := repo.ClaimNextRunnable(dbc, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if reclaimed == nil || reclaimed.ID != claimed.ID {
		t.Fatalf("stale job not reclaimed: %+v", reclaimed)
	}
	if reclaimed.Attempts != 2 {
		t.Fatalf("attempts = %d", reclaimed.Attempts)
	}
}
