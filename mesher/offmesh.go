package mesher

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// LoadOffMeshConnections reads a hand-authored connection list and returns
// the entries addressed to the given map tile. Each line has the form
//
//	mapID tileX,tileY (x y z) (x y z) radius
//
// in game-space coordinates; the returned connections are already swizzled
// to mesh space (y, z, x). Unparseable lines are skipped. A missing file is
// not an error, it just yields no connections.
func LoadOffMeshConnections(path string, mapID, tileX, tileY uint32) ([]OffMeshConnection, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var conns []OffMeshConnection
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		// A well-formed line splits into 9 fields: the parentheses stick
		// to the first and last coordinate of each point.
		parts := strings.Fields(line)
		if len(parts) < 9 {
			continue
		}
		mid, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		tileParts := strings.Split(parts[1], ",")
		if len(tileParts) != 2 {
			continue
		}
		tx, err := strconv.ParseUint(tileParts[0], 10, 32)
		if err != nil {
			continue
		}
		ty, err := strconv.ParseUint(tileParts[1], 10, 32)
		if err != nil {
			continue
		}
		if uint32(mid) != mapID || uint32(tx) != tileX || uint32(ty) != tileY {
			continue
		}

		clean := strings.NewReplacer("(", "", ")", "").Replace(line)
		fields := strings.Fields(clean)
		if len(fields) < 9 {
			continue
		}
		var vals [7]float32
		ok := true
		for i := 0; i < 7; i++ {
			v, err := strconv.ParseFloat(fields[2+i], 32)
			if err != nil {
				ok = false
				break
			}
			vals[i] = float32(v)
		}
		if !ok {
			continue
		}

		conns = append(conns, OffMeshConnection{
			Start:  [3]float32{vals[1], vals[2], vals[0]},
			End:    [3]float32{vals[4], vals[5], vals[3]},
			Radius: vals[6],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return conns, nil
}
