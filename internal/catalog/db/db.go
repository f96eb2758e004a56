package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"ms-voyage/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetCityByID(ctx context.Context, id string) (*models.City, error) {
	var city models.City
	err := d.Bun.NewSelect().
		Model(&city).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &city, nil
}

func (d *DB) GetAirshipByID(ctx context.Context, id string) (*models.Airship, error) {
	var airship models.Airship
	err := d.Bun.NewSelect().
		Model(&airship).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &airship, nil
}

func (d *DB) ListActiveCities(ctx context.Context) ([]models.City, error) {
	var cities []models.City
	err := d.Bun.NewSelect().
		Model(&cities).
		Where("is_active = ?", true).
		Order("display_order ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return cities, nil
}

func (d *DB) ListActiveAirships(ctx context.Context) ([]models.Airship, error) {
	var airships []models.Airship
	err := d.Bun.NewSelect().
		Model(&airships).
		Where("is_active = ?", true).
		Order("display_order ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return airships, nil
}

func (d *DB) GetGuestHouseByCityID(ctx context.Context, cityID string) (*models.GuestHouse, error) {
	var gh models.GuestHouse
	err := d.Bun.NewSelect().
		Model(&gh).
		Where("city_id = ?", cityID).
		Where("is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &gh, nil
}
