package wizard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"onboard/internal/domain"
	"onboard/internal/draft"
	"onboard/internal/metrics"
	fv "onboard/internal/validation"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
)

// Remote is everything the wizard needs from the outside world.
type Remote interface {
	ResolveDistributor(ctx context.Context, id string) (*domain.Distributor, error)
	// CheckImage applies the size and type limits without uploading.
	CheckImage(file domain.ImageUpload) error
	UploadImage(ctx context.Context, file domain.ImageUpload) (string, error)
	// CommitClient writes the client and its reminders as one batch and
	// returns the client id. On create the id is assigned by the store.
	CommitClient(ctx context.Context, rec *domain.ClientRecord, reminders []domain.ReminderRecord, mode domain.SubmitMode) (string, error)
	// LoadClientForEdit returns the stored client. Ownership is checked by
	// the caller.
	LoadClientForEdit(ctx context.Context, clientID string) (*domain.ClientRecord, error)
}

// ValidationError carries the per-field messages of a step that did not pass.
type ValidationError struct {
	Step   Step
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "step " + e.Step.String() + ": " + errors.ErrValidation.Error()
}

func (e *ValidationError) Unwrap() error { return errors.ErrValidation }

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	SessionID       string            `json:"session_id"`
	DistributorID   string            `json:"distributor_id"`
	DistributorName string            `json:"distributor_name"`
	Mode            domain.SubmitMode `json:"mode"`
	Policy          string            `json:"policy"`
	Step            Step              `json:"step"`
	StepName        string            `json:"step_name"`
	TotalSteps      int               `json:"total_steps"`
	Draft           *domain.FormDraft `json:"draft"`
	Errors          map[string]string `json:"errors"`
	StagedImages    []ImageSlot       `json:"staged_images"`
	Busy            bool              `json:"busy"`
	Completed       bool              `json:"completed"`
	ClientID        string            `json:"client_id,omitempty"`
	Redirect        string            `json:"redirect,omitempty"`
}

// Controller is one wizard session. It owns its draft; every mutation goes
// through it. Methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	id          string
	distributor domain.Distributor
	userID      *uuid.UUID
	mode        domain.SubmitMode
	clientID    string

	step      Step
	draft     *domain.FormDraft
	errors    map[string]string
	staged    map[ImageSlot]domain.ImageUpload
	busy      bool
	completed bool
	touched   time.Time

	policy  Policy
	remote  Remote
	drafts  draft.Store
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func (c *Controller) ID() string { return c.id }

// SetField applies one typed update and clears the error recorded for it.
func (c *Controller) SetField(ctx context.Context, u FieldUpdate) error {
	c.mu.Lock()
	if err := c.checkWritableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := u.apply(c.draft); err != nil {
		c.mu.Unlock()
		return err
	}
	c.clearErrorsLocked(u)
	c.touched = c.now()
	snap := c.persistableLocked()
	c.mu.Unlock()

	c.saveDraft(ctx, snap)
	return nil
}

// ValidateStep runs the policy for step n and replaces the error map with its result.
func (c *Controller) ValidateStep(n Step) (bool, error) {
	if !n.Valid() {
		return false, errors.ErrInvalidStep
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked(n), nil
}

// Advance gates on the current step. On the last step it submits.
func (c *Controller) Advance(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if err := c.checkWritableLocked(); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	if !c.validateLocked(c.step) {
		err := &ValidationError{Step: c.step, Fields: copyErrors(c.errors)}
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	if c.step == LastStep {
		c.mu.Unlock()
		_, err := c.Submit(ctx)
		return c.Snapshot(), err
	}
	c.step++
	c.touched = c.now()
	snap := c.persistableLocked()
	c.mu.Unlock()

	c.saveDraft(ctx, snap)
	return c.Snapshot(), nil
}

// Retreat goes back one step without validating. It stays on the first step.
func (c *Controller) Retreat() (Snapshot, error) {
	c.mu.Lock()
	if err := c.checkWritableLocked(); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	if c.step > FirstStep {
		c.step--
	}
	c.touched = c.now()
	c.mu.Unlock()
	return c.Snapshot(), nil
}

// JumpToStep moves back to an earlier step without validating, as the review
// step does for its edit links.
func (c *Controller) JumpToStep(n Step) (Snapshot, error) {
	c.mu.Lock()
	if err := c.checkWritableLocked(); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	if !n.Valid() || n > c.step {
		c.mu.Unlock()
		return c.Snapshot(), errors.ErrInvalidStep
	}
	c.step = n
	c.touched = c.now()
	c.mu.Unlock()
	return c.Snapshot(), nil
}

// AttachImage stages a file for a slot; it is uploaded during Submit.
func (c *Controller) AttachImage(slot ImageSlot, file domain.ImageUpload) error {
	if err := c.remote.CheckImage(file); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritableLocked(); err != nil {
		return err
	}
	c.staged[slot] = file
	c.clearErrorsLocked(slot.update(""))
	c.touched = c.now()
	return nil
}

// UploadImage pushes the file to the image host now and stores the returned URL
// in the slot. On failure the slot keeps its previous value.
func (c *Controller) UploadImage(ctx context.Context, slot ImageSlot, file domain.ImageUpload) (string, error) {
	c.mu.Lock()
	if err := c.checkWritableLocked(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.mu.Unlock()

	url, err := c.remote.UploadImage(ctx, file)
	if err != nil {
		c.metrics.IncrementUpload("error")
		c.logger.Warn("Image upload failed", map[string]interface{}{
			"session_id": c.id,
			"slot":       string(slot),
			"error":      err.Error(),
		})
		return "", err
	}
	c.metrics.IncrementUpload("success")

	c.mu.Lock()
	u := slot.update(url)
	if err := u.apply(c.draft); err != nil {
		c.mu.Unlock()
		return "", err
	}
	delete(c.staged, slot)
	c.clearErrorsLocked(u)
	c.touched = c.now()
	snap := c.persistableLocked()
	c.mu.Unlock()

	c.saveDraft(ctx, snap)
	return url, nil
}

// Submit validates every step, uploads staged images, and commits the client
// with one reminder per card. It returns the client id. Submit is only
// accepted on the review step. On any failure the session stays where it is
// and the draft is kept for a retry.
func (c *Controller) Submit(ctx context.Context) (string, error) {
	c.mu.Lock()
	if err := c.checkWritableLocked(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if c.step != LastStep {
		step := c.step
		c.mu.Unlock()
		return "", errors.Wrap(errors.ErrInvalidStep, "submit from step "+step.String())
	}
	for _, s := range Steps {
		if !c.validateLocked(s) {
			err := &ValidationError{Step: s, Fields: copyErrors(c.errors)}
			c.mu.Unlock()
			return "", err
		}
	}
	c.busy = true
	staged := make(map[ImageSlot]domain.ImageUpload, len(c.staged))
	for k, v := range c.staged {
		staged[k] = v
	}
	c.mu.Unlock()

	start := c.now()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	if err := c.flushStaged(ctx, staged); err != nil {
		c.metrics.ObserveSubmit(string(c.mode), "upload_error", start)
		return "", errors.Wrap(errors.ErrFileUploadFailed, err.Error())
	}

	c.mu.Lock()
	d := c.draft.Clone()
	c.mu.Unlock()

	rec := c.buildRecord(d, start)
	reminders := buildReminders(rec)

	id, err := c.remote.CommitClient(ctx, rec, reminders, c.mode)
	if err != nil {
		c.metrics.ObserveSubmit(string(c.mode), "error", start)
		c.logger.Error("Client commit failed", map[string]interface{}{
			"session_id":     c.id,
			"distributor_id": c.distributor.ID,
			"mode":           string(c.mode),
			"error":          err.Error(),
		})
		if errors.Is(err, errors.ErrCommitFailed) {
			return "", err
		}
		return "", errors.Wrap(errors.ErrCommitFailed, err.Error())
	}
	c.metrics.ObserveSubmit(string(c.mode), "success", start)

	c.mu.Lock()
	c.clientID = id
	c.completed = true
	c.errors = map[string]string{}
	c.touched = c.now()
	c.mu.Unlock()

	if c.mode == domain.SubmitModeCreate {
		if err := c.drafts.Clear(ctx, c.id); err != nil {
			c.logger.Warn("Failed to clear saved draft", map[string]interface{}{
				"session_id": c.id,
				"error":      err.Error(),
			})
		}
	}

	c.logger.Info("Client submitted", map[string]interface{}{
		"session_id":     c.id,
		"client_id":      id,
		"distributor_id": c.distributor.ID,
		"mode":           string(c.mode),
		"cards":          len(reminders),
	})
	return id, nil
}

// flushStaged uploads every staged slot in parallel. Each slot is written to
// the draft as soon as its own upload returns.
func (c *Controller) flushStaged(ctx context.Context, staged map[ImageSlot]domain.ImageUpload) error {
	if len(staged) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for slot, file := range staged {
		slot, file := slot, file
		g.Go(func() error {
			url, err := c.remote.UploadImage(gctx, file)
			if err != nil {
				c.metrics.IncrementUpload("error")
				return errors.Wrap(err, string(slot))
			}
			c.metrics.IncrementUpload("success")

			c.mu.Lock()
			defer c.mu.Unlock()
			if err := slot.update(url).apply(c.draft); err != nil {
				return err
			}
			delete(c.staged, slot)
			return nil
		})
	}
	return g.Wait()
}

func (c *Controller) buildRecord(d *domain.FormDraft, now time.Time) *domain.ClientRecord {
	cards := make(domain.CreditCardList, 0, len(d.CreditCards))
	for _, card := range d.CreditCards {
		if card.IsBlank() {
			continue
		}
		card.CardNumber = fv.NormalizeCardNumber(card.CardNumber)
		card.CardType = fv.DetectCardNetwork(card.CardNumber)
		cards = append(cards, card)
	}
	accounts := make(domain.BankAccountList, 0, len(d.BankAccounts))
	for _, acc := range d.BankAccounts {
		if !acc.IsBlank() {
			accounts = append(accounts, acc)
		}
	}

	return &domain.ClientRecord{
		ClientID:      c.clientID,
		DistributorID: c.distributor.ID,
		UserID:        c.userID,
		Name:          strings.TrimSpace(d.Name),
		Mobile:        d.Mobile,
		Email:         d.Email,
		DateOfBirth:   d.DateOfBirth,
		Address:       d.Address,
		AadhaarNumber: d.AadhaarNumber,
		PANNumber:     d.PANNumber,
		AadhaarImages: d.AadhaarImages,
		PANImageURL:   d.PANImageURL,
		CreditCards:   cards,
		BankAccounts:  accounts,
		Source:        domain.ClientSource,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
}

// buildReminders derives one pending reminder per card. ClientID is filled in
// by the store once the id is known.
func buildReminders(rec *domain.ClientRecord) []domain.ReminderRecord {
	out := make([]domain.ReminderRecord, 0, len(rec.CreditCards))
	for _, card := range rec.CreditCards {
		out = append(out, domain.ReminderRecord{
			ID:                 uuid.New(),
			ClientID:           rec.ClientID,
			ClientName:         rec.Name,
			ClientMobile:       rec.Mobile,
			DistributorID:      rec.DistributorID,
			CardNumber:         card.CardNumber,
			CardType:           card.CardType,
			BankName:           card.BankName,
			CardHolderName:     card.CardHolderName,
			CardLimit:          card.CardLimit,
			BillGenerationDate: card.BillGenerationDate,
			DueDate:            card.DueDate,
			Status:             domain.ReminderStatusPending,
			CreatedAt:          rec.SubmittedAt,
		})
	}
	return out
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	slots := make([]ImageSlot, 0, len(c.staged))
	for _, s := range []ImageSlot{SlotAadhaarFront, SlotAadhaarBack, SlotPAN} {
		if _, ok := c.staged[s]; ok {
			slots = append(slots, s)
		}
	}
	snap := Snapshot{
		SessionID:       c.id,
		DistributorID:   c.distributor.ID,
		DistributorName: c.distributor.Name,
		Mode:            c.mode,
		Policy:          c.policy.Name(),
		Step:            c.step,
		StepName:        c.step.String(),
		TotalSteps:      TotalSteps,
		Draft:           c.draft.Clone(),
		Errors:          copyErrors(c.errors),
		StagedImages:    slots,
		Busy:            c.busy,
		Completed:       c.completed,
		ClientID:        c.clientID,
	}
	if c.completed {
		snap.Redirect = "/success?ref=" + c.clientID
	}
	return snap
}

func (c *Controller) checkWritableLocked() error {
	if c.busy {
		return errors.ErrSubmitInProgress
	}
	if c.completed {
		return errors.ErrSessionCompleted
	}
	return nil
}

// validateLocked checks step n against a view of the draft in which staged
// images count as present.
func (c *Controller) validateLocked(n Step) bool {
	view := c.draft
	if len(c.staged) > 0 {
		view = c.draft.Clone()
		for slot := range c.staged {
			_ = slot.update(stagedURL(slot)).apply(view)
		}
	}
	c.errors = c.policy.Check(n, view)
	return len(c.errors) == 0
}

func (c *Controller) clearErrorsLocked(u FieldUpdate) {
	path := u.Path()
	delete(c.errors, path)
	switch u.(type) {
	case AddCard, RemoveCard, AddBankAccount, RemoveBankAccount:
		for k := range c.errors {
			if strings.HasPrefix(k, path+".") {
				delete(c.errors, k)
			}
		}
	}
}

// persistableLocked returns a copy of the draft when it should be saved: only
// new submissions past the first step are persisted.
func (c *Controller) persistableLocked() *domain.FormDraft {
	if c.mode != domain.SubmitModeCreate || c.step <= FirstStep {
		return nil
	}
	return c.draft.Clone()
}

// saveDraft is best effort: failures are logged and never block the edit.
func (c *Controller) saveDraft(ctx context.Context, d *domain.FormDraft) {
	if d == nil {
		return
	}
	if err := c.drafts.Save(ctx, c.id, d); err != nil {
		c.logger.Warn("Failed to save draft", map[string]interface{}{
			"session_id": c.id,
			"error":      err.Error(),
		})
	}
}

func (c *Controller) lastTouched() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touched
}

// resumable reports whether a Start request for the same form may reuse this session.
func (c *Controller) resumable(distributorID string, mode domain.SubmitMode, clientID string, userID *uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completed || c.distributor.ID != distributorID || c.mode != mode {
		return false
	}
	if mode == domain.SubmitModeCreate {
		return true
	}
	return c.clientID == clientID && userID != nil && c.userID != nil && *c.userID == *userID
}

func (c *Controller) isDone() (completed, busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed, c.busy
}

func copyErrors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
