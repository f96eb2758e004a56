package catalog

import (
	"context"

	"ms-voyage/internal/models"
)

type DBLayer interface {
	GetCityByID(ctx context.Context, id string) (*models.City, error)
	GetAirshipByID(ctx context.Context, id string) (*models.Airship, error)
	ListActiveCities(ctx context.Context) ([]models.City, error)
	ListActiveAirships(ctx context.Context) ([]models.Airship, error)
	GetGuestHouseByCityID(ctx context.Context, cityID string) (*models.GuestHouse, error)
}

// CatalogService serves the seeded rate templates: cities, airships and the
// permanent guesthouse of each city. These are read-mostly; tickets snapshot
// them at purchase time instead of referencing them live.
type CatalogService struct {
	DB DBLayer
}

func NewCatalogService(db DBLayer) *CatalogService {
	return &CatalogService{DB: db}
}

// GetActiveCity returns the city or fails when it is missing or deactivated.
func (s *CatalogService) GetActiveCity(ctx context.Context, id string) (*models.City, error) {
	city, err := s.DB.GetCityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !city.IsActive {
		return nil, models.ErrInactiveCity
	}
	return city, nil
}

func (s *CatalogService) GetActiveAirship(ctx context.Context, id string) (*models.Airship, error) {
	airship, err := s.DB.GetAirshipByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !airship.IsActive {
		return nil, models.ErrInactiveAirship
	}
	return airship, nil
}

func (s *CatalogService) ListActiveCities(ctx context.Context) ([]models.City, error) {
	return s.DB.ListActiveCities(ctx)
}

func (s *CatalogService) ListActiveAirships(ctx context.Context) ([]models.Airship, error) {
	return s.DB.ListActiveAirships(ctx)
}

func (s *CatalogService) GetGuestHouseForCity(ctx context.Context, cityID string) (*models.GuestHouse, error) {
	return s.DB.GetGuestHouseByCityID(ctx, cityID)
}
