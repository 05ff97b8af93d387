package scheduler

import (
	"errors"
	"math/rand"
	"time"

	"github.com/ranklite/backlink-engine/internal/models"
)

// ErrInvalidPlan is returned for non-positive quantities or caps.
var ErrInvalidPlan = errors.New("quantity and daily cap must be positive")

// Slot is one scheduled placement.
type Slot struct {
	AnchorType    models.AnchorType `json:"anchor_type"`
	ScheduledDate time.Time         `json:"scheduled_date"`
	ScheduledFor  time.Time         `json:"scheduled_for"`
}

// Planner builds drip schedules. The rand source is injected so tests can
// seed it; production passes a time-seeded source.
type Planner struct {
	rng         *rand.Rand
	windowStart int
	windowEnd   int
}

// NewPlanner creates a planner whose placement times fall inside the
// [windowStart, windowEnd) local working-day hour window.
func NewPlanner(rng *rand.Rand, windowStart, windowEnd int) *Planner {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if windowEnd <= windowStart {
		windowStart, windowEnd = 9, 17
	}
	return &Planner{
		rng:         rng,
		windowStart: windowStart,
		windowEnd:   windowEnd,
	}
}

// DripSchedule spreads quantity placements across days starting at start,
// filling each day up to dailyCap before advancing. Each unit gets a random
// time of day inside the working window so no two runs produce the same
// suspicious timestamp pattern. Exactly quantity slots are returned, dates
// non-decreasing.
func (p *Planner) DripSchedule(quantity, dailyCap int, start time.Time) ([]Slot, error) {
	slots, err := p.schedule(quantity, dailyCap, start)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		slots[i].AnchorType = models.AnchorBranded
	}
	return slots, nil
}

// Plan combines the anchor mix and the drip schedule into placement slots.
// Anchor types are shuffled across the schedule so each day carries a
// blend instead of runs of one type.
func (p *Planner) Plan(
	quantity, dailyCap int,
	start time.Time,
	history map[models.AnchorType]int,
) ([]Slot, error) {
	slots, err := p.schedule(quantity, dailyCap, start)
	if err != nil {
		return nil, err
	}

	mix := AnchorMix(quantity, history)
	anchors := make([]models.AnchorType, 0, quantity)
	for _, anchorType := range models.AnchorTypes {
		for n := 0; n < mix[anchorType]; n++ {
			anchors = append(anchors, anchorType)
		}
	}
	p.rng.Shuffle(len(anchors), func(i, j int) {
		anchors[i], anchors[j] = anchors[j], anchors[i]
	})

	for i := range slots {
		slots[i].AnchorType = anchors[i]
	}
	return slots, nil
}

func (p *Planner) schedule(quantity, dailyCap int, start time.Time) ([]Slot, error) {
	if quantity <= 0 || dailyCap <= 0 {
		return nil, ErrInvalidPlan
	}

	slots := make([]Slot, 0, quantity)
	day := truncateToDay(start)
	remaining := quantity

	for remaining > 0 {
		batch := dailyCap
		if batch > remaining {
			batch = remaining
		}
		for n := 0; n < batch; n++ {
			slots = append(slots, Slot{
				ScheduledDate: day,
				ScheduledFor:  p.timeWithinWindow(day),
			})
		}
		remaining -= batch
		day = day.AddDate(0, 0, 1)
	}

	return slots, nil
}

// timeWithinWindow picks a random second inside the working-day window.
func (p *Planner) timeWithinWindow(day time.Time) time.Time {
	windowSeconds := (p.windowEnd - p.windowStart) * 3600
	offset := p.rng.Intn(windowSeconds)
	return day.Add(time.Duration(p.windowStart)*time.Hour + time.Duration(offset)*time.Second)
}

func truncateToDay(t time.Time) time.Time {
	year, month, dayOfMonth := t.Date()
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, t.Location())
}
