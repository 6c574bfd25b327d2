package limiter

import "github.com/balcony-power/dpc/external"

const shadedChannelFraction = 0.98

// compensateShading scales a calculated limit up when some DC channels are
// shaded relative to their expected per-channel share, so the unshaded
// channels make up the difference (§4.6 step 15). It only applies to 2- or
// 4-channel inverters, and only once the limit is high enough that a low
// reading is believable evidence of shading rather than just a low target.
func compensateShading(inv external.Inverter, limitW float64) float64 {
	channels := inv.NumChannels(external.ChannelTypeDC)
	if channels != 2 && channels != 4 {
		return limitW
	}
	if limitW < float64(channels)*10 {
		return limitW
	}

	expectedPerChannel := limitW / float64(channels) * shadedChannelFraction

	shadedChannels := 0
	for ch := 0; ch < channels; ch++ {
		power := inv.ChannelFieldValue(external.ChannelTypeDC, ch, external.FieldPDC)
		if power < expectedPerChannel {
			shadedChannels++
		}
	}

	if shadedChannels == 0 || shadedChannels == channels {
		return limitW
	}

	scaled := limitW * float64(channels) / float64(channels-shadedChannels)
	if scaled <= limitW {
		return limitW
	}

	return scaled
}
