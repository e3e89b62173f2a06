package mesher

import "github.com/navforge/navforge/geom"

// FilterLowHangingWalkableObstacles marks non-walkable spans as walkable when
// they sit directly on a walkable span and protrude by at most walkableClimb
// cells. Only the first obstacle above a walkable floor is considered.
func FilterLowHangingWalkableObstacles(walkableClimb int32, hf *Heightfield) {
	for z := int32(0); z < hf.Height; z++ {
		for x := int32(0); x < hf.Width; x++ {
			prev := nilSpan
			previousWasWalkable := false
			previousArea := uint8(NullArea)
			for si := hf.columns[x+z*hf.Width]; si != nilSpan; si = hf.spans[si].next {
				s := &hf.spans[si]
				walkable := s.Area != NullArea
				// Copy the walkable flag from the span below if the height
				// difference is small enough.
				if !walkable && previousWasWalkable {
					if absInt32(int32(s.SMax)-int32(hf.spans[prev].SMax)) <= walkableClimb {
						s.Area = previousArea
					}
				}
				// Remember the original state before any override so walkable
				// flags never propagate through a chain of obstacles.
				previousWasWalkable = walkable
				previousArea = s.Area
				prev = si
			}
		}
	}
}

// FilterLedgeSpans marks spans as un-walkable when the drop to any of their
// four neighbours exceeds walkableClimb cells, or when the traversable
// neighbour floors differ by more than walkableClimb among themselves.
func FilterLedgeSpans(walkableHeight, walkableClimb int32, hf *Heightfield) {
	for z := int32(0); z < hf.Height; z++ {
		for x := int32(0); x < hf.Width; x++ {
			for si := hf.columns[x+z*hf.Width]; si != nilSpan; si = hf.spans[si].next {
				s := &hf.spans[si]
				if s.Area == NullArea {
					continue
				}

				bot := int32(s.SMax)
				top := int32(SpanMaxHeight)
				if s.next != nilSpan {
					top = int32(hf.spans[s.next].SMin)
				}

				// Lowest neighbour floor difference, and the floor range
				// among neighbours the span can actually step to.
				minDrop := int32(SpanMaxHeight)
				accessibleMin := int32(s.SMax)
				accessibleMax := int32(s.SMax)

				for dir := int32(0); dir < 4; dir++ {
					nx := x + geom.DirOffsetX(dir)
					nz := z + geom.DirOffsetZ(dir)
					if nx < 0 || nz < 0 || nx >= hf.Width || nz >= hf.Height {
						minDrop = -walkableClimb - 1
						break
					}

					// Gap from this floor to the first neighbour span.
					nsi := hf.columns[nx+nz*hf.Width]
					nbot := -walkableClimb
					ntop := int32(SpanMaxHeight)
					if nsi != nilSpan {
						ntop = int32(hf.spans[nsi].SMin)
					}
					if minInt32(top, ntop)-bot > walkableHeight {
						minDrop = minInt32(minDrop, nbot-bot)
					}

					for ; nsi != nilSpan; nsi = hf.spans[nsi].next {
						ns := &hf.spans[nsi]
						nbot = int32(ns.SMax)
						ntop = int32(SpanMaxHeight)
						if ns.next != nilSpan {
							ntop = int32(hf.spans[ns.next].SMin)
						}
						// Skip neighbours the span cannot fit through.
						if minInt32(top, ntop)-maxInt32(bot, nbot) <= walkableHeight {
							continue
						}
						minDrop = minInt32(minDrop, nbot-bot)
						if absInt32(nbot-bot) <= walkableClimb {
							if nbot < accessibleMin {
								accessibleMin = nbot
							}
							if nbot > accessibleMax {
								accessibleMax = nbot
							}
						}
					}
					if minDrop < -walkableClimb {
						break
					}
				}

				if minDrop < -walkableClimb {
					s.Area = NullArea
				} else if accessibleMax-accessibleMin > walkableClimb {
					// The accessible neighbour floors are too far apart; this
					// is a steep slope rasterized into stairs.
					s.Area = NullArea
				}
			}
		}
	}
}

// FilterWalkableLowHeightSpans marks walkable spans as un-walkable when the
// clearance to the span above is below walkableHeight cells.
func FilterWalkableLowHeightSpans(walkableHeight int32, hf *Heightfield) {
	for z := int32(0); z < hf.Height; z++ {
		for x := int32(0); x < hf.Width; x++ {
			for si := hf.columns[x+z*hf.Width]; si != nilSpan; si = hf.spans[si].next {
				s := &hf.spans[si]
				bot := int32(s.SMax)
				top := int32(SpanMaxHeight)
				if s.next != nilSpan {
					top = int32(hf.spans[s.next].SMin)
				}
				if top-bot <= walkableHeight {
					s.Area = NullArea
				}
			}
		}
	}
}

func minInt32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
