package pgship

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"shipdispatch/internal/geo"
	"shipdispatch/internal/models"
)

const officeColumns = `id, name, type, region, lat, lng, address, active`

func scanOffice(row pgx.Row) (*models.Office, error) {
	var o models.Office
	err := row.Scan(&o.ID, &o.Name, &o.Type, &o.Region, &o.Lat, &o.Lng, &o.Address, &o.Active)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Storage) CreateOffice(ctx context.Context, o *models.Office) (uint64, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO offices (name, type, region, lat, lng, address, active)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id
`, o.Name, o.Type, o.Region, o.Lat, o.Lng, o.Address, o.Active).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert office")
	}
	return id, nil
}

func (s *Storage) GetOffice(ctx context.Context, id uint64) (*models.Office, error) {
	o, err := scanOffice(s.db.QueryRow(ctx,
		`SELECT `+officeColumns+` FROM offices WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select office")
	}
	return o, nil
}

func (s *Storage) ListActiveOfficesInBox(ctx context.Context, officeType string, box geo.BoundingBox) ([]*models.Office, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+officeColumns+`
FROM offices
WHERE type = $1
  AND active
  AND lat BETWEEN $2 AND $3
  AND lng BETWEEN $4 AND $5
`, officeType, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, errors.Wrap(err, "select offices in box")
	}
	defer rows.Close()

	var out []*models.Office
	for rows.Next() {
		o, err := scanOffice(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan office")
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetRegionalHub returns the single REGIONAL office of a region.
func (s *Storage) GetRegionalHub(ctx context.Context, region string) (*models.Office, error) {
	o, err := scanOffice(s.db.QueryRow(ctx, `
SELECT `+officeColumns+`
FROM offices
WHERE type = $1 AND region = $2 AND active
`, models.OfficeTypeRegional, region))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select regional hub")
	}
	return o, nil
}
