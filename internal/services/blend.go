package services

// Form blend weights: season form dominates, recency tapers.
const (
	seasonWeight = 0.55
	l10Weight    = 0.30
	l5Weight     = 0.15

	// Form-majority blend ratio against the ML mean: the engine trusts
	// observable form over the model 7:3.
	formWeight = 0.70
	mlWeight   = 0.30
)

// BlendForm combines season, last-10 and last-5 averages into a single form
// estimate. Each missing term borrows the next-longer-window term (l5 missing
// uses l10 in its slot, l10 missing uses season), so a player with only a
// season average still gets a form estimate equal to that average. Returns nil
// only if all three observations are absent.
func BlendForm(season, l10, l5 *float64) *float64 {
	if season == nil && l10 == nil && l5 == nil {
		return nil
	}

	// Fallback chain, longest window first. A nil season with a live l10
	// slides the chain down rather than zero-filling.
	seasonVal := firstPresent(season, l10, l5)
	l10Val := firstPresent(l10, season, l5)
	l5Val := firstPresent(l5, l10, season)

	blend := seasonWeight*(*seasonVal) + l10Weight*(*l10Val) + l5Weight*(*l5Val)
	return &blend
}

// BlendWithML blends a form estimate with an optional ML model mean. With
// both present the result is 0.7*form + 0.3*ml; with one present, that one;
// with neither, nil.
func BlendWithML(form, mlMean *float64) *float64 {
	switch {
	case form != nil && mlMean != nil:
		blend := formWeight*(*form) + mlWeight*(*mlMean)
		return &blend
	case form != nil:
		v := *form
		return &v
	case mlMean != nil:
		v := *mlMean
		return &v
	default:
		return nil
	}
}

func firstPresent(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
