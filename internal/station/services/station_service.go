package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

// StationService reads the station catalog and the identity tables the
// orchestrator consumes. It never mutates them; station configuration
// is managed outside the queue system.
type StationService struct {
	DB *sql.DB
}

func NewStationService(db *sql.DB) *StationService {
	return &StationService{DB: db}
}

// GetStationCatalog lists the configured stations, active first.
func (ss *StationService) GetStationCatalog(ctx context.Context) ([]models.Station, error) {
	rows, err := ss.DB.QueryContext(ctx, `
		SELECT station_type, station_number, IFNULL(assigned_employee_ref, ''), is_active
		FROM stations
		ORDER BY is_active DESC, station_type, station_number
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: station catalog: %v", models.ErrTransientIO, err)
	}
	defer rows.Close()

	var catalog []models.Station
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(&st.StationType, &st.StationNumber, &st.AssignedEmployeeRef, &st.IsActive); err != nil {
			return nil, fmt.Errorf("%w: station scan: %v", models.ErrTransientIO, err)
		}
		catalog = append(catalog, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: station rows: %v", models.ErrTransientIO, err)
	}

	// Decorate assignments with the employee's display name. A failed
	// lookup leaves the bare ref; the catalog stays usable.
	for i := range catalog {
		if catalog[i].AssignedEmployeeRef == "" {
			continue
		}
		name, err := ss.GetEmployeeIdentity(ctx, catalog[i].AssignedEmployeeRef)
		if err != nil {
			continue
		}
		catalog[i].AssignedEmployeeName = name
	}
	return catalog, nil
}

// GetPatientIdentity resolves a patient ref to a display name.
func (ss *StationService) GetPatientIdentity(ctx context.Context, ref string) (string, error) {
	var name string
	err := ss.DB.QueryRowContext(ctx, `SELECT full_name FROM patients WHERE ref = ?`, ref).Scan(&name)
	if err == sql.ErrNoRows {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: patient identity: %v", models.ErrTransientIO, err)
	}
	return name, nil
}

// GetEmployeeIdentity resolves an employee ref to a display name.
func (ss *StationService) GetEmployeeIdentity(ctx context.Context, ref string) (string, error) {
	var name string
	err := ss.DB.QueryRowContext(ctx, `SELECT full_name FROM employees WHERE id = ?`, ref).Scan(&name)
	if err == sql.ErrNoRows {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: employee identity: %v", models.ErrTransientIO, err)
	}
	return name, nil
}
