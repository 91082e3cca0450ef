package fundrequest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/logger"
	"github.com/erp/fundflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// proofContentTypes maps accepted payment proof content types to file extensions
var proofContentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// FundRequestService handles fund request workflow operations
type FundRequestService struct {
	requestRepo     fundrequest.FundRequestRepository
	historyRepo     fundrequest.HistoryRepository
	steps           *StepService
	numbers         fundrequest.RequestNumberGenerator
	proofStorage    ProofStorage
	metrics         *telemetry.WorkflowMetrics
	retryOnConflict bool
}

// NewFundRequestService creates a new FundRequestService.
// Conflicting transitions are retried once unless disabled with SetRetryOnConflict.
func NewFundRequestService(
	requestRepo fundrequest.FundRequestRepository,
	historyRepo fundrequest.HistoryRepository,
	steps *StepService,
	numbers fundrequest.RequestNumberGenerator,
) *FundRequestService {
	return &FundRequestService{
		requestRepo:     requestRepo,
		historyRepo:     historyRepo,
		steps:           steps,
		numbers:         numbers,
		retryOnConflict: true,
	}
}

// SetProofStorage sets the storage used for payment proofs
func (s *FundRequestService) SetProofStorage(storage ProofStorage) {
	s.proofStorage = storage
}

// SetWorkflowMetrics sets the workflow metrics collector
func (s *FundRequestService) SetWorkflowMetrics(m *telemetry.WorkflowMetrics) {
	s.metrics = m
}

// SetRetryOnConflict toggles the single automatic retry after a persistence conflict
func (s *FundRequestService) SetRetryOnConflict(retry bool) {
	s.retryOnConflict = retry
}

// Create creates a fund request in draft, or directly in submitted when req.Submit is set.
// Validation failures perform no write and consume no request number.
func (s *FundRequestService) Create(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, req CreateFundRequestRequest) (_ *FundRequestResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fundrequest.create", telemetry.AttrTenantID.String(tenantID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	requestDate := time.Now()
	if req.RequestDate != nil {
		requestDate = *req.RequestDate
	}
	input := fundrequest.NewFundRequestInput{
		Beneficiary: req.Beneficiary,
		Amount:      req.Amount,
		Currency:    fundrequest.Currency(strings.ToUpper(req.Currency)),
		Description: req.Description,
		RequestDate: requestDate,
		Submit:      req.Submit,
		Language:    fundrequest.LanguageOrDefault(req.Language),
	}
	if err := fundrequest.ValidateNewFundRequest(tenantID, actor, input); err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("next request number: %w", err)
	}
	input.RequestNumber = number

	request, entry, err := fundrequest.NewFundRequest(tenantID, actor, input)
	if err != nil {
		return nil, err
	}
	if err := s.requestRepo.Create(ctx, request, entry); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRequestCreated(ctx, tenantID, string(request.Currency), request.Amount)
	}
	logger.L(ctx).Info("Fund request created",
		zap.String("fund_request_id", request.ID.String()),
		zap.String("reference", request.Reference()),
		zap.String("status", string(request.Status)),
	)

	resp := ToFundRequestResponse(request)
	return &resp, nil
}

// GetByID retrieves a fund request
func (s *FundRequestService) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*FundRequestResponse, error) {
	request, err := s.requestRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	resp := ToFundRequestResponse(request)
	return &resp, nil
}

// List retrieves fund requests with filtering and pagination
func (s *FundRequestService) List(ctx context.Context, tenantID uuid.UUID, filter FundRequestListFilter) (*FundRequestListResult, error) {
	f := fundrequest.ListFilter{
		RequesterID: filter.RequesterID,
		From:        filter.From,
		To:          filter.To,
		Search:      strings.TrimSpace(filter.Search),
		OrderBy:     filter.OrderBy,
		OrderDir:    filter.OrderDir,
		Page:        filter.Page,
		PageSize:    filter.PageSize,
	}
	if filter.Status != "" {
		status := fundrequest.Status(filter.Status)
		if !status.IsValid() {
			return nil, shared.NewValidationError(fmt.Sprintf("Unknown status %q", filter.Status))
		}
		f.Status = &status
	}
	f.Normalize()

	requests, total, err := s.requestRepo.FindAll(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}
	result := shared.NewPaginated(ToFundRequestListItemResponses(requests), total, f.Page, f.PageSize)
	return &result, nil
}

// Transition moves a fund request to req.TargetStatus on behalf of actor.
// A persistence conflict is retried once: the request is re-read and, if its
// status is still the one first acted on, re-validated and re-applied. If the
// status has moved on, the conflict is returned to the caller.
func (s *FundRequestService) Transition(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, id uuid.UUID, req TransitionRequest) (_ *FundRequestResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fundrequest.transition",
		telemetry.AttrRequestID.String(id.String()),
		telemetry.AttrToStatus.String(req.TargetStatus),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	start := time.Now()
	target := fundrequest.Status(req.TargetStatus)
	expected := fundrequest.Status(req.ExpectedStatus)

	request, observed, err := s.applyTransition(ctx, tenantID, actor, id, target, expected, req)
	if shared.IsConflict(err) && s.retryOnConflict {
		s.recordConflict(ctx, tenantID, true)
		logger.L(ctx).Warn("Fund request changed concurrently, retrying transition",
			zap.String("fund_request_id", id.String()),
			zap.String("observed_status", string(observed)),
			zap.String("target_status", string(target)),
		)
		if expected == "" {
			expected = observed
		}
		request, _, err = s.applyTransition(ctx, tenantID, actor, id, target, expected, req)
		if shared.IsConflict(err) {
			s.recordConflict(ctx, tenantID, false)
		}
	} else if shared.IsConflict(err) {
		s.recordConflict(ctx, tenantID, false)
	}
	s.recordTransition(ctx, tenantID, observed, target, err, time.Since(start))

	if err != nil {
		if shared.IsConflict(err) {
			logger.L(ctx).Warn("Fund request transition lost to a concurrent update",
				zap.String("fund_request_id", id.String()),
				zap.String("target_status", string(target)),
			)
		}
		return nil, err
	}

	logger.L(ctx).Info("Fund request transitioned",
		zap.String("fund_request_id", request.ID.String()),
		zap.String("reference", request.Reference()),
		zap.String("from_status", string(observed)),
		zap.String("to_status", string(request.Status)),
		zap.String("actor_id", actor.UserID.String()),
	)
	resp := ToFundRequestResponse(request)
	return &resp, nil
}

// applyTransition performs one read-validate-write attempt. It returns the
// status the request had when read, even on failure. A non-empty expected
// status turns a mismatch into a conflict before any validation.
func (s *FundRequestService) applyTransition(
	ctx context.Context,
	tenantID uuid.UUID,
	actor fundrequest.Actor,
	id uuid.UUID,
	target fundrequest.Status,
	expected fundrequest.Status,
	req TransitionRequest,
) (*fundrequest.FundRequest, fundrequest.Status, error) {
	steps, err := s.steps.ListActiveSteps(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	request, err := s.requestRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, "", err
	}
	from := request.Status
	if expected != "" && from != expected {
		return nil, from, shared.NewDomainError(shared.CodeConcurrencyConflict,
			fmt.Sprintf("Fund request %s is now %s", request.Reference(), from))
	}

	version := request.Version
	entry, err := request.Transition(target, actor, steps, fundrequest.TransitionInput{
		Comment:          req.Comment,
		Reason:           req.Reason,
		PaymentReference: req.PaymentReference,
		Language:         fundrequest.LanguageOrDefault(req.Language),
	})
	if err != nil {
		return nil, from, err
	}
	if err := s.requestRepo.UpdateIfStatus(ctx, request, from, version, entry); err != nil {
		return nil, from, err
	}
	return request, from, nil
}

// Submit moves a draft to submitted
func (s *FundRequestService) Submit(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, id uuid.UUID, req ActionRequest) (*FundRequestResponse, error) {
	return s.Transition(ctx, tenantID, actor, id, actionTransition(fundrequest.StatusSubmitted, req))
}

// Review moves a submitted request into accounting review
func (s *FundRequestService) Review(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, id uuid.UUID, req ActionRequest) (*FundRequestResponse, error) {
	return s.Transition(ctx, tenantID, actor, id, actionTransition(fundrequest.StatusAccountingReview, req))
}

// Validate approves a reviewed request
func (s *FundRequestService) Validate(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, id uuid.UUID, req ActionRequest) (*FundRequestResponse, error) {
	return s.Transition(ctx, tenantID, actor, id, actionTransition(fundrequest.StatusValidated, req))
}

// Pay marks a validated request as paid
func (s *FundRequestService) Pay(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, id uuid.UUID, req ActionRequest) (*FundRequestResponse, error) {
	return s.Transition(ctx, tenantID, actor, id, actionTransition(fundrequest.StatusPaid, req))
}

// Resubmit sends a rejected request back to submitted
func (s *FundRequestService) Resubmit(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, id uuid.UUID, req ActionRequest) (*FundRequestResponse, error) {
	return s.Transition(ctx, tenantID, actor, id, actionTransition(fundrequest.StatusSubmitted, req))
}

// Reject rejects a request under review with a reason
func (s *FundRequestService) Reject(ctx context.Context, tenantID uuid.UUID, actor fundrequest.Actor, id uuid.UUID, req RejectRequest) (*FundRequestResponse, error) {
	return s.Transition(ctx, tenantID, actor, id, TransitionRequest{
		TargetStatus:   string(fundrequest.StatusRejected),
		Reason:         req.Reason,
		ExpectedStatus: req.ExpectedStatus,
		Language:       req.Language,
	})
}

func actionTransition(target fundrequest.Status, req ActionRequest) TransitionRequest {
	return TransitionRequest{
		TargetStatus:     string(target),
		Comment:          req.Comment,
		PaymentReference: req.PaymentReference,
		ExpectedStatus:   req.ExpectedStatus,
		Language:         req.Language,
	}
}

// History returns the ledger of a fund request in insertion order
func (s *FundRequestService) History(ctx context.Context, tenantID, id uuid.UUID) ([]HistoryEntryResponse, error) {
	if _, err := s.requestRepo.FindByID(ctx, tenantID, id); err != nil {
		return nil, err
	}
	entries, err := s.historyRepo.FindByRequest(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return ToHistoryEntryResponses(entries), nil
}

// Progress projects the request status onto the organization's active steps
func (s *FundRequestService) Progress(ctx context.Context, tenantID, id uuid.UUID) (*ProgressResponse, error) {
	request, err := s.requestRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.steps.ListActiveSteps(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &ProgressResponse{
		FundRequestID: request.ID,
		Status:        string(request.Status),
		Steps:         fundrequest.ProjectRequest(steps, request),
	}, nil
}

// AttachPaymentProof uploads a payment proof for a paid request and records its key.
// A previous proof is replaced and its object removed.
func (s *FundRequestService) AttachPaymentProof(
	ctx context.Context,
	tenantID uuid.UUID,
	actor fundrequest.Actor,
	id uuid.UUID,
	contentType string,
	body io.Reader,
	size int64,
) (*FundRequestResponse, error) {
	if s.proofStorage == nil {
		return nil, shared.NewConfigurationError("Payment proof storage is not configured")
	}
	ext, ok := proofContentTypes[contentType]
	if !ok {
		return nil, shared.NewValidationError("Payment proof must be a PDF, PNG or JPEG file")
	}
	if size <= 0 {
		return nil, shared.NewValidationError("Payment proof file is empty")
	}

	steps, err := s.steps.ListActiveSteps(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	request, err := s.requestRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	previous := request.PaymentProofKey
	version := request.Version
	key := ProofKey(tenantID, request.ID, ext)
	if err := request.AttachPaymentProof(key, actor, steps); err != nil {
		return nil, err
	}

	if err := s.proofStorage.Upload(ctx, key, contentType, body, size); err != nil {
		return nil, fmt.Errorf("upload payment proof: %w", err)
	}
	if err := s.requestRepo.UpdateIfStatus(ctx, request, fundrequest.StatusPaid, version, nil); err != nil {
		if delErr := s.proofStorage.Delete(ctx, key); delErr != nil {
			logger.L(ctx).Warn("Failed to remove orphaned payment proof",
				zap.String("key", key),
				zap.Error(delErr),
			)
		}
		return nil, err
	}
	if previous != "" {
		if err := s.proofStorage.Delete(ctx, previous); err != nil {
			logger.L(ctx).Warn("Failed to remove replaced payment proof",
				zap.String("key", previous),
				zap.Error(err),
			)
		}
	}

	logger.L(ctx).Info("Payment proof attached",
		zap.String("fund_request_id", request.ID.String()),
		zap.String("key", key),
	)
	resp := ToFundRequestResponse(request)
	return &resp, nil
}

// PaymentProofURL returns a temporary download link for the payment proof
func (s *FundRequestService) PaymentProofURL(ctx context.Context, tenantID, id uuid.UUID) (*PaymentProofURLResponse, error) {
	if s.proofStorage == nil {
		return nil, shared.NewConfigurationError("Payment proof storage is not configured")
	}
	request, err := s.requestRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if request.PaymentProofKey == "" {
		return nil, shared.NewDomainError(shared.CodeNotFound, "No payment proof is attached to this fund request")
	}
	url, expires, err := s.proofStorage.DownloadURL(ctx, request.PaymentProofKey)
	if err != nil {
		return nil, fmt.Errorf("payment proof url: %w", err)
	}
	return &PaymentProofURLResponse{URL: url, ExpiresAt: expires}, nil
}

// ProofKey builds the object key of a payment proof
func ProofKey(tenantID, requestID uuid.UUID, ext string) string {
	return path.Join("payment-proofs", tenantID.String(), requestID.String(), uuid.NewString()+ext)
}

func (s *FundRequestService) recordConflict(ctx context.Context, tenantID uuid.UUID, retried bool) {
	if s.metrics != nil {
		s.metrics.RecordConflict(ctx, tenantID, retried)
	}
}

func (s *FundRequestService) recordTransition(ctx context.Context, tenantID uuid.UUID, from, to fundrequest.Status, err error, d time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := telemetry.OutcomeSuccess
	switch {
	case err == nil:
	case shared.IsConflict(err):
		outcome = telemetry.OutcomeConflict
	case isRuleViolation(err):
		outcome = telemetry.OutcomeRejected
	default:
		outcome = telemetry.OutcomeError
	}
	s.metrics.RecordTransition(ctx, tenantID, string(from), string(to), outcome, d)
}

// isRuleViolation reports whether err is a workflow rule refusal rather than a failure
func isRuleViolation(err error) bool {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return false
	}
	switch de.Code {
	case shared.CodeValidation, shared.CodeInvalidTransition, shared.CodeUnauthorizedAction:
		return true
	}
	return false
}
