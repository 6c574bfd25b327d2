package charger

// efficiencyPoint is one (output watts, efficiency fraction) sample of the
// PSU's measured efficiency curve, referenced to the NPB-1200-48 model.
type efficiencyPoint struct {
	watts      float64
	efficiency float64
}

var efficiencyCurve = []efficiencyPoint{
	{0, 0.750},
	{100, 0.9000},
	{177, 0.9222},
	{222, 0.9535},
	{440, 0.9522},
	{666, 0.9498},
	{888, 0.9380},
	{1000, 0.9250},
	{1100, 0.9200},
	{1300, 0.9150},
}

// efficiencyAt interpolates the model-scaled efficiency curve for a given
// output power. Below the first point it holds at the first point's
// efficiency; above the last point it linearly extrapolates the final
// segment's slope rather than holding flat (Open Question: the original
// firmware's table ends at 1300W and lets interpolation fall through to
// the last two points, which is a linear extrapolation in practice).
func efficiencyAt(outputWatts float64, model string) float64 {
	scale := modelScaling(model)

	for i := 0; i < len(efficiencyCurve)-1; i++ {
		lo := efficiencyCurve[i]
		hi := efficiencyCurve[i+1]
		loX := lo.watts * scale
		hiX := hi.watts * scale

		if outputWatts < loX {
			if i == 0 {
				return lo.efficiency
			}
			continue
		}
		if outputWatts <= hiX {
			diffX := outputWatts - loX
			spanX := hiX - loX
			return lo.efficiency + (hi.efficiency-lo.efficiency)*diffX/spanX
		}
	}

	last := efficiencyCurve[len(efficiencyCurve)-1]
	secondLast := efficiencyCurve[len(efficiencyCurve)-2]
	lastX := last.watts * scale
	secondLastX := secondLast.watts * scale
	slope := (last.efficiency - secondLast.efficiency) / (lastX - secondLastX)

	return last.efficiency + slope*(outputWatts-lastX)
}
