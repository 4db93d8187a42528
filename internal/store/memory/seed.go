package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"bookingcore/backend/internal/domain"
)

// Seed is the calendar data loaded into a memory store at startup.
type Seed struct {
	Locations     []domain.Location     `json:"locations"`
	Services      []domain.Service      `json:"services"`
	WorkSchedules []domain.WorkSchedule `json:"work_schedules"`
	Holidays      []domain.Holiday      `json:"holidays"`
	Absences      []domain.Absence      `json:"absences"`
}

func (s *Store) Load(seed Seed) {
	for _, l := range seed.Locations {
		s.PutLocation(l)
	}
	for _, svc := range seed.Services {
		s.PutService(svc)
	}
	for _, ws := range seed.WorkSchedules {
		s.PutWorkSchedule(ws)
	}
	for _, h := range seed.Holidays {
		s.PutHoliday(h)
	}
	for _, a := range seed.Absences {
		s.PutAbsence(a)
	}
}

func ReadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

func LoadFile(s *Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	seed, err := ReadSeed(f)
	if err != nil {
		return err
	}
	s.Load(seed)
	return nil
}
