package attendance

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/rowstore"
	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

// ReconcilerConfig describes the dependencies of a Reconciler.
type ReconcilerConfig struct {
	Store        rowstore.Store
	Partitioning Partitioning
	Locker       Locker
	Logger       *zap.Logger
}

// Reconciler toggles a member's attendance for a date between entry, exit and complete.
//
// The read of the day's rows and the following append or cell update are separate store
// calls. Reconcile holds the Locker's slot for (member, date) across both, so two scans of
// the same member on the same day never both append. Rows are only ever appended, so a row
// index resolved inside the lock stays valid for the write that follows it. Deployments
// with several processes against one store need a shared Locker such as RedisLocker.
type Reconciler struct {
	store        rowstore.Store
	partitioning Partitioning
	locker       Locker
	logger       *zap.Logger
}

// NewReconciler validates the configuration. A nil Locker defaults to a KeyedLocker.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opReconcilerNew, reasonMissingStore, errMissingStore)
	}
	partitioning, err := ParsePartitioning(string(cfg.Partitioning))
	if err != nil {
		return nil, newServiceError(opReconcilerNew, reasonInvalidPartition, err)
	}
	locker := cfg.Locker
	if locker == nil {
		locker = NewKeyedLocker()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Reconciler{
		store:        cfg.Store,
		partitioning: partitioning,
		locker:       locker,
		logger:       logger,
	}, nil
}

// Reconcile records one scan and returns which of the three outcomes applied.
// Store failures wrap rowstore.ErrUnavailable or rowstore.ErrRecordNotFound; a failed read
// performs no write.
func (r *Reconciler) Reconcile(ctx context.Context, checkIn CheckIn) (Result, error) {
	memberID := strings.TrimSpace(checkIn.MemberID)
	if memberID == "" {
		return Result{}, newServiceError(opReconcile, reasonMissingMember, errMissingMemberID)
	}
	date := strings.TrimSpace(checkIn.Date)
	if date == "" {
		return Result{}, newServiceError(opReconcile, reasonMissingDate, errMissingDate)
	}

	unlock, err := r.locker.Lock(ctx, lockKey(memberID, date))
	if err != nil {
		r.logError(opReconcile, reasonLockFailed, err, zap.String("member_id", memberID), zap.String("date", date))
		return Result{}, newServiceError(opReconcile, reasonLockFailed, err)
	}
	defer unlock()

	scope := r.scopeFor(date)
	rows, err := r.store.ListRecords(ctx, scope)
	if err != nil {
		r.logError(opReconcile, reasonListFailed, err, zap.String("member_id", memberID), zap.String("date", date))
		return Result{}, newServiceError(opReconcile, reasonListFailed, err)
	}

	existing, found := r.firstMatch(rows, memberID, date)
	switch {
	case !found:
		record := Record{
			MemberID: memberID,
			Date:     date,
			InTime:   checkIn.Time,
			Name:     strings.TrimSpace(checkIn.Name),
		}
		row, err := r.store.AppendRecord(ctx, scope, map[string]string{
			FieldMemberID: record.MemberID,
			FieldDate:     record.Date,
			FieldInTime:   record.InTime,
			FieldOutTime:  "",
			FieldName:     record.Name,
		})
		if err != nil {
			r.logError(opReconcile, reasonAppendFailed, err, zap.String("member_id", memberID), zap.String("date", date))
			return Result{}, newServiceError(opReconcile, reasonAppendFailed, err)
		}
		record.Row = row
		r.logger.Info("attendance entry marked",
			zap.String("member_id", memberID),
			zap.String("date", date),
			zap.String("scope", scope.String()),
			zap.Int("row", row))
		return Result{Outcome: OutcomeEntryMarked, Record: record}, nil

	case existing.Open():
		if err := r.store.UpdateField(ctx, scope, existing.Row, FieldOutTime, checkIn.Time); err != nil {
			r.logError(opReconcile, reasonUpdateFailed, err,
				zap.String("member_id", memberID), zap.String("date", date), zap.Int("row", existing.Row))
			return Result{}, newServiceError(opReconcile, reasonUpdateFailed, err)
		}
		existing.OutTime = checkIn.Time
		r.logger.Info("attendance exit marked",
			zap.String("member_id", memberID),
			zap.String("date", date),
			zap.String("scope", scope.String()),
			zap.Int("row", existing.Row))
		return Result{Outcome: OutcomeExitMarked, Record: existing}, nil

	default:
		r.logger.Debug("attendance already complete",
			zap.String("member_id", memberID),
			zap.String("date", date))
		return Result{Outcome: OutcomeAlreadyComplete, Record: existing}, nil
	}
}

// ListDay returns the records of one date in store order.
func (r *Reconciler) ListDay(ctx context.Context, date string) ([]Record, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil, newServiceError(opListDay, reasonMissingDate, errMissingDate)
	}
	rows, err := r.store.ListRecords(ctx, r.scopeFor(date))
	if err != nil {
		r.logError(opListDay, reasonListFailed, err, zap.String("date", date))
		return nil, newServiceError(opListDay, reasonListFailed, err)
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		record := recordFromRow(row)
		if r.partitioning == PartitionCombined && record.Date != date {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Reconciler) scopeFor(date string) rowstore.Scope {
	if r.partitioning == PartitionCombined {
		return rowstore.Scope{Table: TableName}
	}
	return rowstore.Scope{Table: TableName, Partition: date}
}

// firstMatch scans in store order; later duplicates of the same key are ignored.
func (r *Reconciler) firstMatch(rows []rowstore.Record, memberID, date string) (Record, bool) {
	for _, row := range rows {
		record := recordFromRow(row)
		if record.MemberID != memberID {
			continue
		}
		if r.partitioning == PartitionCombined && record.Date != date {
			continue
		}
		return record, true
	}
	return Record{}, false
}

func (r *Reconciler) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("attendance reconciler error", attrs...)
}
