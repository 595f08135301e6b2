package engine

// CalcPnL realizes the round trip in quote units. Each side contributes its
// price move over its opening size, and every fee is subtracted as reported
// by the venue (rebates arrive negative and so add back).
func CalcPnL(longOpen, longClose, shortOpen, shortClose EffectiveFill) float64 {
	longPnL := (longClose.Price-longOpen.Price)*longOpen.Size - (longOpen.Fee + longClose.Fee)
	shortPnL := (shortOpen.Price-shortClose.Price)*shortOpen.Size - (shortOpen.Fee + shortClose.Fee)
	return longPnL + shortPnL
}
