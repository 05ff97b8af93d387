// Package scheduler computes anchor-text mixes and day-by-day drip
// schedules for backlink placement. Randomness comes from an injected
// seedable source so tests are deterministic.
package scheduler

import "github.com/ranklite/backlink-engine/internal/models"

// Target anchor-type ratios. The spread keeps the cumulative profile of a
// target URL looking organic: mostly branded and partial-match anchors,
// few exact-match ones.
var targetRatios = map[models.AnchorType]float64{
	models.AnchorBranded: 0.40,
	models.AnchorPartial: 0.30,
	models.AnchorGeneric: 0.20,
	models.AnchorExact:   0.10,
}

// AnchorMix allocates quantity across anchor types. With no history the
// fixed target ratios apply directly. When prior backlinks exist for the
// target, new units are allocated toward the cumulative target
// distribution, so the overall profile converges on the safe ratios no
// matter how skewed the history is. The returned counts always sum to
// exactly quantity; leftover units from floor rounding go to the partial
// bucket.
func AnchorMix(quantity int, history map[models.AnchorType]int) map[models.AnchorType]int {
	mix := make(map[models.AnchorType]int, len(models.AnchorTypes))
	if quantity <= 0 {
		return mix
	}

	existing := 0
	for _, count := range history {
		existing += count
	}

	allocated := 0
	if existing == 0 {
		for _, anchorType := range models.AnchorTypes {
			n := int(float64(quantity) * targetRatios[anchorType])
			mix[anchorType] = n
			allocated += n
		}
	} else {
		// Deficit toward the target over the combined total. Types already
		// over-represented get nothing until the others catch up.
		total := existing + quantity
		deficits := make(map[models.AnchorType]float64, len(models.AnchorTypes))
		deficitSum := 0.0
		for _, anchorType := range models.AnchorTypes {
			want := targetRatios[anchorType] * float64(total)
			deficit := want - float64(history[anchorType])
			if deficit < 0 {
				deficit = 0
			}
			deficits[anchorType] = deficit
			deficitSum += deficit
		}

		if deficitSum == 0 {
			// History already matches or exceeds every target; fall back to
			// the fixed ratios.
			return AnchorMix(quantity, nil)
		}

		for _, anchorType := range models.AnchorTypes {
			n := int(float64(quantity) * deficits[anchorType] / deficitSum)
			mix[anchorType] = n
			allocated += n
		}
	}

	mix[models.AnchorPartial] += quantity - allocated
	return mix
}
