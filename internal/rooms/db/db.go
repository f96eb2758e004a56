package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-voyage/internal/models"
	"ms-voyage/internal/rooms"
)

type DB struct {
	Ctx context.Context
	Bun *bun.DB
}

func NewDB(ctx context.Context, bunDB *bun.DB) *DB {
	return &DB{Ctx: ctx, Bun: bunDB}
}

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, ops rooms.TxOps) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txOps{tx: tx})
	})
}

func (d *DB) GetStayByID(ctx context.Context, stayID string) (*models.Stay, error) {
	stay := new(models.Stay)
	err := d.Bun.NewSelect().Model(stay).Where("id = ?", stayID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return stay, nil
}

func (d *DB) GetActiveStayByUser(ctx context.Context, userID string) (*models.Stay, error) {
	stay := new(models.Stay)
	err := d.Bun.NewSelect().Model(stay).
		Where("user_id = ?", userID).
		Where("status = ?", models.StayStatusCheckedIn).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stay, nil
}

func (d *DB) ListActiveStaysByRoom(ctx context.Context, roomID string) ([]models.Stay, error) {
	var stays []models.Stay
	err := d.Bun.NewSelect().Model(&stays).
		Where("room_id = ?", roomID).
		Where("status = ?", models.StayStatusCheckedIn).
		Order("check_in_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return stays, nil
}

func (d *DB) UpdateStayTaskIDs(ctx context.Context, stayID, checkoutTaskID, reminderTaskID string) error {
	_, err := d.Bun.NewUpdate().Model((*models.Stay)(nil)).
		Set("checkout_task_id = ?", checkoutTaskID).
		Set("reminder_task_id = ?", reminderTaskID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", stayID).
		Exec(ctx)
	return err
}

func (d *DB) ReapRooms(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.Bun.NewDelete().Model((*models.Room)(nil)).
		WhereAllWithDeleted().
		Where("deleted_at IS NOT NULL").
		Where("deleted_at < ?", cutoff).
		ForceDelete().
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// IsUniqueViolation unwraps both backends: SQLSTATE 23505 from pgdriver, the
// "UNIQUE constraint failed" message from sqlite.
func (d *DB) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type txOps struct {
	tx bun.Tx
}

func (o *txOps) lockForUpdate(q *bun.SelectQuery) *bun.SelectQuery {
	if o.tx.Dialect().Name() == dialect.PG {
		return q.For("UPDATE")
	}
	return q
}

func (o *txOps) FindAvailableRoomForUpdate(ctx context.Context, guestHouseID string) (*models.Room, error) {
	room := new(models.Room)
	q := o.tx.NewSelect().Model(room).
		Where("guest_house_id = ?", guestHouseID).
		Where("status = ?", models.RoomStatusActive).
		Order("room_number ASC").
		Limit(1)
	err := o.lockForUpdate(q).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// NextRoomNumber counts tombstoned rooms too, so a recycled guesthouse never
// reissues a number that still sits in the table awaiting the reaper.
func (o *txOps) NextRoomNumber(ctx context.Context, guestHouseID string) (int, error) {
	var max sql.NullInt64
	err := o.tx.NewSelect().Model((*models.Room)(nil)).
		ColumnExpr("MAX(room_number)").
		WhereAllWithDeleted().
		Where("guest_house_id = ?", guestHouseID).
		Scan(ctx, &max)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return int(max.Int64) + 1, nil
}

func (o *txOps) InsertRoom(ctx context.Context, room *models.Room) error {
	_, err := o.tx.NewInsert().Model(room).Exec(ctx)
	return err
}

func (o *txOps) UpdateRoom(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now().UTC()
	_, err := o.tx.NewUpdate().Model(room).WherePK().Exec(ctx)
	return err
}

func (o *txOps) SoftDeleteRoom(ctx context.Context, room *models.Room, now time.Time) error {
	room.UpdatedAt = now
	if _, err := o.tx.NewUpdate().Model(room).WherePK().Exec(ctx); err != nil {
		return err
	}
	_, err := o.tx.NewDelete().Model(room).WherePK().Exec(ctx)
	return err
}

func (o *txOps) GetRoomForUpdate(ctx context.Context, roomID string) (*models.Room, error) {
	room := new(models.Room)
	q := o.tx.NewSelect().Model(room).Where("id = ?", roomID)
	err := o.lockForUpdate(q).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (o *txOps) InsertStay(ctx context.Context, stay *models.Stay) error {
	_, err := o.tx.NewInsert().Model(stay).Exec(ctx)
	return err
}

func (o *txOps) GetStayForUpdate(ctx context.Context, stayID string) (*models.Stay, error) {
	stay := new(models.Stay)
	q := o.tx.NewSelect().Model(stay).Where("id = ?", stayID)
	err := o.lockForUpdate(q).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return stay, nil
}

func (o *txOps) UpdateStay(ctx context.Context, stay *models.Stay) error {
	_, err := o.tx.NewUpdate().Model(stay).WherePK().Exec(ctx)
	return err
}

func (o *txOps) GetActiveStayByUser(ctx context.Context, userID string) (*models.Stay, error) {
	stay := new(models.Stay)
	err := o.tx.NewSelect().Model(stay).
		Where("user_id = ?", userID).
		Where("status = ?", models.StayStatusCheckedIn).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stay, nil
}
