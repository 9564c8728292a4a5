package server

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zucenko/rescuegrid/model"
)

// Archive keeps the latest report of the most recent missions, current one
// included. Older missions are evicted first.
type Archive struct {
	cache *lru.Cache[string, model.MissionReport]
}

func NewArchive(size int) (*Archive, error) {
	c, err := lru.New[string, model.MissionReport](size)
	if err != nil {
		return nil, fmt.Errorf("mission archive: %w", err)
	}
	return &Archive{cache: c}, nil
}

func (a *Archive) Put(r model.MissionReport) {
	a.cache.Add(r.MissionID, r)
}

func (a *Archive) Get(id string) (model.MissionReport, error) {
	r, ok := a.cache.Get(id)
	if !ok {
		return model.MissionReport{}, fmt.Errorf("%w: %s", ErrMissionNotFound, id)
	}
	return r, nil
}

func (a *Archive) Len() int {
	return a.cache.Len()
}
