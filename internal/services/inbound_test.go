package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	leadrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/lead"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/form"
	"github.com/warungdigital/leadbot-backend/internal/identity"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/statemachine"
)

const testUser = "628123456789@s.whatsapp.net"

// ---- in-memory fakes ----

type fakeLeadRepo struct {
	mu           sync.Mutex
	leads        map[uuid.UUID]*types.Lead
	maxWarnings  int
	interactions *fakeInteractionRepo
	forms        *fakeFormRepo
}

func newFakeLeadRepo(inter *fakeInteractionRepo, forms *fakeFormRepo) *fakeLeadRepo {
	return &fakeLeadRepo{
		leads:        map[uuid.UUID]*types.Lead{},
		maxWarnings:  3,
		interactions: inter,
		forms:        forms,
	}
}

func (r *fakeLeadRepo) byPrimary(primaryID string) *types.Lead {
	for _, ld := range r.leads {
		if ld.PrimaryID == primaryID {
			return ld
		}
	}
	return nil
}

func (r *fakeLeadRepo) byAlt(altID string) *types.Lead {
	for _, ld := range r.leads {
		if ld.AltID == altID {
			return ld
		}
	}
	for _, ld := range r.leads {
		if ld.PrimaryID == altID {
			return ld
		}
	}
	return nil
}

func (r *fakeLeadRepo) GetByPrimary(_ dbctx.Context, primaryID string) (*types.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ld := r.byPrimary(primaryID); ld != nil {
		cp := *ld
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeLeadRepo) GetByAlt(_ dbctx.Context, altID string) (*types.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ld := r.byAlt(altID); ld != nil {
		cp := *ld
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeLeadRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ld, ok := r.leads[id]; ok {
		cp := *ld
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeLeadRepo) Create(_ dbctx.Context, primaryID, transport string, state statemachine.State, opts leadrepo.CreateOptions) (*types.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ld := &types.Lead{
		ID:        uuid.New(),
		PrimaryID: primaryID,
		AltID:     opts.AltID,
		PushName:  opts.PushName,
		Transport: transport,
		State:     string(state),
	}
	r.leads[ld.ID] = ld
	cp := *ld
	return &cp, nil
}

func (r *fakeLeadRepo) GetOrCreate(dbc dbctx.Context, primaryID, transport string, opts leadrepo.CreateOptions) (*types.Lead, bool, error) {
	r.mu.Lock()
	if ld := r.byPrimary(primaryID); ld != nil {
		if opts.PushName != "" {
			ld.PushName = opts.PushName
		}
		if opts.AltID != "" && ld.AltID == "" {
			ld.AltID = opts.AltID
		}
		cp := *ld
		r.mu.Unlock()
		return &cp, false, nil
	}
	r.mu.Unlock()
	ld, err := r.Create(dbc, primaryID, transport, statemachine.Initial, opts)
	return ld, true, err
}

func (r *fakeLeadRepo) MarkExisting(dbc dbctx.Context, primaryID, transport string) (*types.Lead, error) {
	r.mu.Lock()
	if ld := r.byPrimary(primaryID); ld != nil {
		if ld.State == string(statemachine.StateNew) {
			ld.State = string(statemachine.StateExisting)
		}
		cp := *ld
		r.mu.Unlock()
		return &cp, nil
	}
	r.mu.Unlock()
	return r.Create(dbc, primaryID, transport, statemachine.StateExisting, leadrepo.CreateOptions{})
}

func (r *fakeLeadRepo) UpdateState(_ dbctx.Context, id uuid.UUID, to statemachine.State) (*types.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ld, ok := r.leads[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	from, err := statemachine.ParseState(ld.State)
	if err != nil {
		return nil, err
	}
	next, err := statemachine.Transition(from, to)
	if err != nil {
		return nil, err
	}
	ld.State = string(next)
	cp := *ld
	return &cp, nil
}

func (r *fakeLeadRepo) IncrementWarning(_ dbctx.Context, id uuid.UUID) (*types.Lead, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ld, ok := r.leads[id]
	if !ok {
		return nil, false, apperrors.ErrNotFound
	}
	ld.WarningCount++
	cp := *ld
	return &cp, ld.WarningCount >= r.maxWarnings, nil
}

func (r *fakeLeadRepo) ResetWarning(_ dbctx.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ld, ok := r.leads[id]; ok {
		ld.WarningCount = 0
	}
	return nil
}

func (r *fakeLeadRepo) ResolveIdentity(dbc dbctx.Context, primaryID, altID string) (*types.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPrimary := r.byPrimary(primaryID)
	var byAlt *types.Lead
	if altID != "" {
		byAlt = r.byAlt(altID)
	}
	switch {
	case byPrimary != nil && byAlt != nil && byPrimary.ID != byAlt.ID:
		r.interactions.reparent(byAlt.ID, byPrimary.ID)
		if src, ok := r.forms.rows[byAlt.ID]; ok {
			if dst, ok := r.forms.rows[byPrimary.ID]; ok {
				merged := form.Merge(leadrepo.FragmentOf(src), leadrepo.FragmentOf(dst))
				dst.Biodata = merged.Biodata
				dst.SourceInfo = merged.SourceInfo
				dst.BusinessType = merged.BusinessType
				dst.Budget = merged.Budget
				dst.StartPlan = merged.StartPlan
				dst.Completed = dst.Completed || src.Completed
			} else {
				src.LeadID = byPrimary.ID
				r.forms.rows[byPrimary.ID] = src
			}
			delete(r.forms.rows, byAlt.ID)
		}
		delete(r.leads, byAlt.ID)
		if byPrimary.AltID == "" {
			byPrimary.AltID = altID
		}
		cp := *byPrimary
		return &cp, nil
	case byPrimary != nil:
		if altID != "" && byPrimary.AltID == "" {
			byPrimary.AltID = altID
		}
		cp := *byPrimary
		return &cp, nil
	case byAlt != nil:
		byAlt.PrimaryID = primaryID
		byAlt.AltID = altID
		cp := *byAlt
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

type fakeInteractionRepo struct {
	mu   sync.Mutex
	rows []*types.LeadInteraction
}

func (r *fakeInteractionRepo) Add(_ dbctx.Context, leadID uuid.UUID, messageID, text, direction string) (*types.LeadInteraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := &types.LeadInteraction{
		ID:        uuid.New(),
		LeadID:    leadID,
		MessageID: messageID,
		Text:      text,
		Direction: direction,
	}
	r.rows = append(r.rows, row)
	return row, nil
}

func (r *fakeInteractionRepo) ListRecent(_ dbctx.Context, leadID uuid.UUID, limit int) ([]*types.LeadInteraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.LeadInteraction
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].LeadID == leadID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

func (r *fakeInteractionRepo) CountByLead(_ dbctx.Context, leadID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.LeadID == leadID {
			n++
		}
	}
	return n, nil
}

func (r *fakeInteractionRepo) reparent(from, to uuid.UUID) {
	for _, row := range r.rows {
		if row.LeadID == from {
			row.LeadID = to
		}
	}
}

func (r *fakeInteractionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeFormRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.LeadFormData
}

func (r *fakeFormRepo) Get(_ dbctx.Context, leadID uuid.UUID) (*types.LeadFormData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[leadID]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeFormRepo) Upsert(_ dbctx.Context, leadID uuid.UUID, partial form.Fragment) (*types.LeadFormData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[leadID]
	if !ok {
		row = &types.LeadFormData{ID: uuid.New(), LeadID: leadID}
		r.rows[leadID] = row
	}
	merged := form.Merge(leadrepo.FragmentOf(row), partial)
	row.Biodata = merged.Biodata
	row.SourceInfo = merged.SourceInfo
	row.BusinessType = merged.BusinessType
	row.Budget = merged.Budget
	row.StartPlan = merged.StartPlan
	cp := *row
	return &cp, nil
}

func (r *fakeFormRepo) MarkCompleted(_ dbctx.Context, leadID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[leadID]; ok {
		row.Completed = true
	}
	return nil
}

type enqueuedNotify struct {
	payload OperatorNotifyPayload
}

type fakeDispatch struct {
	mu       sync.Mutex
	sheets   []SpreadsheetSyncPayload
	notifies []enqueuedNotify
	fail     bool
}

func (d *fakeDispatch) EnqueueSpreadsheetSync(_ dbctx.Context, ld *types.Lead, merged form.Fragment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return fmt.Errorf("queue down")
	}
	d.sheets = append(d.sheets, SpreadsheetSyncPayload{
		LeadID:       ld.ID.String(),
		UserID:       ld.PrimaryID,
		Transport:    ld.Transport,
		Biodata:      merged.Biodata,
		SourceInfo:   merged.SourceInfo,
		BusinessType: merged.BusinessType,
		Budget:       merged.Budget,
		StartPlan:    merged.StartPlan,
	})
	return nil
}

func (d *fakeDispatch) EnqueueOperatorNotify(_ dbctx.Context, p OperatorNotifyPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return fmt.Errorf("queue down")
	}
	d.notifies = append(d.notifies, enqueuedNotify{payload: p})
	return nil
}

func (d *fakeDispatch) notifyKinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, n := range d.notifies {
		out = append(out, n.payload.Kind)
	}
	return out
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: map[string]bool{}} }

func (d *fakeDedup) key(transport, id string) string { return transport + ":" + id }

func (d *fakeDedup) Seen(_ context.Context, transport, messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[d.key(transport, messageID)]
}

func (d *fakeDedup) Mark(_ context.Context, transport, messageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[d.key(transport, messageID)] = true
}

func (d *fakeDedup) Unmark(_ context.Context, transport, messageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, d.key(transport, messageID))
}

type fakeLock struct {
	mu     sync.Mutex
	held   map[string]string
	broken bool
}

func newFakeLock() *fakeLock { return &fakeLock{held: map[string]string{}} }

func (l *fakeLock) Acquire(_ context.Context, userID string, _ time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[userID]; taken {
		return "", false
	}
	token := uuid.NewString()
	l.held[userID] = token
	return token, true
}

func (l *fakeLock) AcquireWithRetry(ctx context.Context, userID string, _ int) (string, error) {
	if l.broken {
		return "", fmt.Errorf("user %s: %w", userID, apperrors.ErrLockFailed)
	}
	token, ok := l.Acquire(ctx, userID, 0)
	if !ok {
		return "", fmt.Errorf("user %s: %w", userID, apperrors.ErrLockFailed)
	}
	return token, nil
}

func (l *fakeLock) Release(_ context.Context, userID, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[userID] == token {
		delete(l.held, userID)
	}
}

type fakeCooldown struct {
	mu     sync.Mutex
	active map[string]bool
}

func newFakeCooldown() *fakeCooldown { return &fakeCooldown{active: map[string]bool{}} }

func (c *fakeCooldown) InCooldown(_ context.Context, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[userID]
}

func (c *fakeCooldown) SetCooldown(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[userID] = true
}

// ---- harness ----

type pipelineFixture struct {
	svc          InboundService
	leads        *fakeLeadRepo
	interactions *fakeInteractionRepo
	forms        *fakeFormRepo
	dispatch     *fakeDispatch
	dedup        *fakeDedup
	lock         *fakeLock
	cooldown     *fakeCooldown
}

func passthroughTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return fn(dbctx.New(ctx))
}

func newPipeline(t *testing.T, cfg InboundConfig) *pipelineFixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}

	inter := &fakeInteractionRepo{}
	forms := &fakeFormRepo{rows: map[uuid.UUID]*types.LeadFormData{}}
	leads := newFakeLeadRepo(inter, forms)
	dispatch := &fakeDispatch{}
	templates, err := NewTemplateService(nil, log, "")
	if err != nil {
		t.Fatalf("init templates: %v", err)
	}

	f := &pipelineFixture{
		leads:        leads,
		interactions: inter,
		forms:        forms,
		dispatch:     dispatch,
		dedup:        newFakeDedup(),
		lock:         newFakeLock(),
		cooldown:     newFakeCooldown(),
	}
	f.svc = NewInboundService(
		passthroughTx, log,
		leads, inter, forms,
		dispatch, templates,
		f.dedup, f.lock, f.cooldown,
		cfg,
	)
	return f
}

func inbound(messageID, text string) identity.InboundMessage {
	return identity.InboundMessage{
		Transport: types.TransportWhatsApp,
		MessageID: messageID,
		UserID:    testUser,
		Text:      text,
		Metadata:  identity.Metadata{PushName: "Budi"},
	}
}

func (f *pipelineFixture) handle(t *testing.T, messageID, text string) HandleResult {
	t.Helper()
	// the cooldown fake never expires, so clear it between turns like time would
	f.cooldown.mu.Lock()
	f.cooldown.active = map[string]bool{}
	f.cooldown.mu.Unlock()

	res, err := f.svc.Handle(context.Background(), inbound(messageID, text))
	if err != nil {
		t.Fatalf("Handle(%q, %q): %v", messageID, text, err)
	}
	return res
}

func (f *pipelineFixture) lead(t *testing.T) *types.Lead {
	t.Helper()
	ld, err := f.leads.GetByPrimary(dbctx.New(context.Background()), testUser)
	if err != nil {
		t.Fatalf("lead not found: %v", err)
	}
	return ld
}

// ---- scenarios ----

func TestFreshGreeting(t *testing.T) {
	f := newPipeline(t, InboundConfig{})

	res := f.handle(t, "m1", "Halo")
	if !res.Success || !res.ShouldReply {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.SecondaryText != "" {
		t.Fatalf("no secondary expected, got %q", res.SecondaryText)
	}
	for _, option := range []string{"1.", "2.", "3."} {
		if !strings.Contains(res.ReplyText, option) {
			t.Fatalf("welcome menu missing option %q: %q", option, res.ReplyText)
		}
	}

	ld := f.lead(t)
	if ld.State != string(statemachine.StateChooseOption) {
		t.Fatalf("state = %q", ld.State)
	}
	if n, _ := f.interactions.CountByLead(dbctx.New(context.Background()), ld.ID); n != 1 {
		t.Fatalf("interactions = %d", n)
	}
	if kinds := f.dispatch.notifyKinds(); len(kinds) != 1 || kinds[0] != NotifyNewLead {
		t.Fatalf("notify kinds = %v", kinds)
	}
}

func TestOptionOneSendsForm(t *testing.T) {
	f := newPipeline(t, InboundConfig{})
	f.handle(t, "m1", "Halo")

	res := f.handle(t, "m2", "1")
	if !res.ShouldReply || res.SecondaryText == "" {
		t.Fatalf("expected ack plus form template, got %+v", res)
	}
	for _, label := range []string{"Nama, Domisili:", "Sumber info:", "Jenis bisnis:", "Budget:", "Rencana mulai:"} {
		if !strings.Contains(res.SecondaryText, label) {
			t.Fatalf("form template missing %q: %q", label, res.SecondaryText)
		}
	}
	if f.lead(t).State != string(statemachine.StateFormSent) {
		t.Fatalf("state = %q", f.lead(t).State)
	}
}

func TestCompleteFormQueuesSyncAndNotify(t *testing.T) {
	f := newPipeline(t, InboundConfig{})
	f.handle(t, "m1", "Halo")
	f.handle(t, "m2", "1")

	body := "Nama, Domisili: Budi, Jakarta\n" +
		"Sumber info: Instagram\n" +
		"Jenis bisnis: F&B\n" +
		"Budget: 100 juta\n" +
		"Rencana mulai: 3 bulan lagi"
	res := f.handle(t, "m3", body)
	if !res.ShouldReply {
		t.Fatalf("expected reply, got %+v", res)
	}

	ld := f.lead(t)
	if ld.State != string(statemachine.StateFormCompleted) {
		t.Fatalf("state = %q", ld.State)
	}

	row, err := f.forms.Get(dbctx.New(context.Background()), ld.ID)
	if err != nil {
		t.Fatalf("form row: %v", err)
	}
	if !row.Completed {
		t.Fatal("form not marked completed")
	}
	got := leadrepo.FragmentOf(row)
	want := form.Fragment{
		Biodata:      "Budi, Jakarta",
		SourceInfo:   "Instagram",
		BusinessType: "F&B",
		Budget:       "100 juta",
		StartPlan:    "3 bulan lagi",
	}
	if got != want {
		t.Fatalf("fragment:\n got  %+v\n want %+v", got, want)
	}

	if len(f.dispatch.sheets) != 1 {
		t.Fatalf("spreadsheet jobs = %d", len(f.dispatch.sheets))
	}
	kinds := f.dispatch.notifyKinds()
	if len(kinds) != 2 || kinds[0] != NotifyNewLead || kinds[1] != NotifyFormCompleted {
		t.Fatalf("notify kinds = %v", kinds)
	}
}

func TestDuplicateWebhookIsInert(t *testing.T) {
	f := newPipeline(t, InboundConfig{})
	f.handle(t, "m1", "Halo")
	f.handle(t, "m2", "1")

	before := f.interactions.count()
	stateBefore := f.lead(t).State

	res := f.handle(t, "m2", "1")
	if res.Type != ResultDuplicate || res.ShouldReply {
		t.Fatalf("replay should be a silent duplicate, got %+v", res)
	}
	if f.interactions.count() != before {
		t.Fatal("duplicate appended an interaction")
	}
	if f.lead(t).State != stateBefore {
		t.Fatal("duplicate changed state")
	}
}

func TestInvalidOptionsEscalate(t *testing.T) {
	f := newPipeline(t, InboundConfig{})
	f.handle(t, "m1", "Halo")

	res := f.handle(t, "m2", "x")
	if f.lead(t).WarningCount != 1 || !res.ShouldReply {
		t.Fatalf("after first invalid: count=%d res=%+v", f.lead(t).WarningCount, res)
	}
	f.handle(t, "m3", "y")
	if f.lead(t).WarningCount != 2 {
		t.Fatalf("warning count = %d", f.lead(t).WarningCount)
	}

	res = f.handle(t, "m4", "z")
	ld := f.lead(t)
	if ld.WarningCount != 3 {
		t.Fatalf("warning count = %d", ld.WarningCount)
	}
	if ld.State != string(statemachine.StateManualIntervention) {
		t.Fatalf("state = %q", ld.State)
	}
	if !res.ShouldReply || !strings.Contains(res.ReplyText, "Tim kami") {
		t.Fatalf("expected escalation notice, got %+v", res)
	}

	var escalations []OperatorNotifyPayload
	for _, n := range f.dispatch.notifies {
		if n.payload.Kind == NotifyEscalation {
			escalations = append(escalations, n.payload)
		}
	}
	if len(escalations) != 1 {
		t.Fatalf("escalations = %d", len(escalations))
	}
	esc := escalations[0]
	if esc.Reason != ReasonMaxWarnings || esc.WarningCount != 3 || esc.LastMessage != "z" {
		t.Fatalf("escalation payload = %+v", esc)
	}
}

func TestSilentStates(t *testing.T) {
	for _, state := range []statemachine.State{
		statemachine.StateExisting,
		statemachine.StateManualIntervention,
	} {
		t.Run(string(state), func(t *testing.T) {
			f := newPipeline(t, InboundConfig{})
			ld, err := f.leads.Create(dbctx.New(context.Background()), testUser, types.TransportWhatsApp, state, leadrepo.CreateOptions{})
			if err != nil {
				t.Fatal(err)
			}

			res := f.handle(t, "m1", "Halo lagi")
			if res.Type != ResultNoReply || res.ShouldReply {
				t.Fatalf("expected silence, got %+v", res)
			}
			if n, _ := f.interactions.CountByLead(dbctx.New(context.Background()), ld.ID); n != 1 {
				t.Fatalf("interaction not logged, count=%d", n)
			}
		})
	}
}

func TestPostFormContactEscalates(t *testing.T) {
	f := newPipeline(t, InboundConfig{})
	if _, err := f.leads.Create(dbctx.New(context.Background()), testUser, types.TransportWhatsApp, statemachine.StateFormCompleted, leadrepo.CreateOptions{}); err != nil {
		t.Fatal(err)
	}

	res := f.handle(t, "m9", "kapan dihubungi?")
	if !res.ShouldReply {
		t.Fatalf("expected handoff ack, got %+v", res)
	}
	if f.lead(t).State != string(statemachine.StateManualIntervention) {
		t.Fatalf("state = %q", f.lead(t).State)
	}

	kinds := f.dispatch.notifyKinds()
	if len(kinds) != 1 || kinds[0] != NotifyEscalation {
		t.Fatalf("notify kinds = %v", kinds)
	}
	if f.dispatch.notifies[0].payload.Reason != ReasonPostFormContact {
		t.Fatalf("reason = %q", f.dispatch.notifies[0].payload.Reason)
	}
}

func TestOwnMessageMarksExisting(t *testing.T) {
	f := newPipeline(t, InboundConfig{})

	msg := inbound("m1", "Halo, ini dari tim kami")
	msg.FromMe = true
	res, err := f.svc.Handle(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != ResultOwnMessage || res.ShouldReply {
		t.Fatalf("unexpected result: %+v", res)
	}

	ld := f.lead(t)
	if ld.State != string(statemachine.StateExisting) {
		t.Fatalf("state = %q", ld.State)
	}

	// the user greets later: still no welcome menu
	res = f.handle(t, "m2", "Halo")
	if res.ShouldReply {
		t.Fatalf("existing lead must not get the menu, got %+v", res)
	}
}

func TestCooldownLogsWithoutReply(t *testing.T) {
	f := newPipeline(t, InboundConfig{})
	f.handle(t, "m1", "Halo")

	// handle() clears cooldown; call Handle directly to keep it active
	if !f.cooldown.InCooldown(context.Background(), testUser) {
		t.Fatal("reply should have set cooldown")
	}
	res, err := f.svc.Handle(context.Background(), inbound("m2", "1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != ResultCooldown || res.ShouldReply {
		t.Fatalf("expected cooldown swallow, got %+v", res)
	}

	ld := f.lead(t)
	if ld.State != string(statemachine.StateChooseOption) {
		t.Fatalf("state advanced under cooldown: %q", ld.State)
	}
	if n, _ := f.interactions.CountByLead(dbctx.New(context.Background()), ld.ID); n != 2 {
		t.Fatalf("interactions = %d", n)
	}
}

func TestLockFailureReleasesDedupMark(t *testing.T) {
	f := newPipeline(t, InboundConfig{})
	f.lock.broken = true

	res, err := f.svc.Handle(context.Background(), inbound("m1", "Halo"))
	if !errors.Is(err, apperrors.ErrLockFailed) {
		t.Fatalf("err = %v", err)
	}
	if res.Success || res.Type != ResultLockFailed {
		t.Fatalf("result = %+v", res)
	}
	if f.dedup.Seen(context.Background(), types.TransportWhatsApp, "m1") {
		t.Fatal("dedup mark should be released so the transport can redeliver")
	}

	// redelivery succeeds once the lock is healthy again
	f.lock.broken = false
	res = f.handle(t, "m1", "Halo")
	if !res.ShouldReply {
		t.Fatalf("redelivery not processed: %+v", res)
	}
}

func TestQueueFailureSurfacesError(t *testing.T) {
	f := newPipeline(t, InboundConfig{})
	f.dispatch.fail = true

	res, err := f.svc.Handle(context.Background(), inbound("m1", "Halo"))
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
	if res.Success {
		t.Fatalf("result = %+v", res)
	}
	if f.cooldown.InCooldown(context.Background(), testUser) {
		t.Fatal("no reply was sent, cooldown must not be set")
	}
}

func TestSplitBrainIdentityMerge(t *testing.T) {
	f := newPipeline(t, InboundConfig{})

	// a sync import created a lead keyed by the phone JID
	imported, err := f.leads.Create(dbctx.New(context.Background()), "628123456789@s.whatsapp.net", types.TransportWhatsApp, statemachine.StateFormSent, leadrepo.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	msg := identity.InboundMessage{
		Transport: types.TransportWhatsApp,
		MessageID: "m1",
		UserID:    "111222333444555@lid",
		Text:      "Budget: 100 juta",
		Metadata:  identity.Metadata{AltID: "628123456789@s.whatsapp.net"},
	}
	if _, err := f.svc.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	// the imported lead was migrated onto the @lid primary, no second lead
	if len(f.leads.leads) != 1 {
		t.Fatalf("leads = %d, want 1", len(f.leads.leads))
	}
	ld := f.leads.leads[imported.ID]
	if ld == nil {
		t.Fatal("imported lead vanished instead of being migrated")
	}
	if ld.PrimaryID != "111222333444555@lid" || ld.AltID != "628123456789@s.whatsapp.net" {
		t.Fatalf("identity not migrated: %+v", ld)
	}
	// FORM_SENT survives the merge, so the message was treated as form content
	if ld.State != string(statemachine.StateFormInProgress) {
		t.Fatalf("state = %q", ld.State)
	}
}

func TestMarkAfterCommitMode(t *testing.T) {
	f := newPipeline(t, InboundConfig{MarkProcessedAfterCommit: true})
	f.dispatch.fail = true

	if _, err := f.svc.Handle(context.Background(), inbound("m1", "Halo")); err == nil {
		t.Fatal("expected failure")
	}
	if f.dedup.Seen(context.Background(), types.TransportWhatsApp, "m1") {
		t.Fatal("failed transaction must not mark the message in deferred mode")
	}

	f.dispatch.fail = false
	res := f.handle(t, "m1", "Halo")
	if !res.ShouldReply {
		t.Fatalf("retry not processed: %+v", res)
	}
	if !f.dedup.Seen(context.Background(), types.TransportWhatsApp, "m1") {
		t.Fatal("successful commit must mark the message")
	}
}
