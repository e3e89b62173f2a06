// Command navforge builds navigation mesh tiles from triangle geometry.
// The input mesh is split into a grid of tiles which are voxelized, meshed
// and packed into versioned tile files, plus one parameters file describing
// the tile layout.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/navforge/navforge/binio"
	"github.com/navforge/navforge/config"
	"github.com/navforge/navforge/geom"
	"github.com/navforge/navforge/logger"
	"github.com/navforge/navforge/mesher"
	"github.com/navforge/navforge/objfile"
	"github.com/navforge/navforge/tile"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		inputPath  = flag.String("input", "", "input OBJ geometry (required)")
		mapID      = flag.Uint("map", 0, "map id used in output file names")
		outDir     = flag.String("out", "", "output directory (overrides config)")
		scale      = flag.Float64("scale", 1, "input geometry scale factor")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: navforge -input mesh.obj [-config navforge.yaml] [-map N] [-out dir]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "navforge:", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "mmaps"
	}

	logger.Init(cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()
	log := logger.Log

	if err := run(cfg, *inputPath, uint32(*mapID), float32(*scale), log); err != nil {
		log.Error("build failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, inputPath string, mapID uint32, scale float32, log *zap.Logger) error {
	mesh, err := objfile.Load(inputPath, scale)
	if err != nil {
		return err
	}
	if mesh.TriCount() == 0 {
		return fmt.Errorf("no triangles in %s", inputPath)
	}
	log.Info("geometry loaded",
		zap.String("file", inputPath),
		zap.Int("verts", mesh.VertCount()),
		zap.Int("tris", mesh.TriCount()))

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}

	var bmin, bmax [3]float32
	geom.CalcBounds(mesh.Verts, int32(mesh.VertCount()), bmin[:], bmax[:])

	// Tile grid over the geometry bounds. The origin sits at the minimum
	// corner so tile coordinates start at (0,0).
	tileDim := float32(config.GridSize)
	tw := int32((bmax[0]-bmin[0])/tileDim) + 1
	th := int32((bmax[2]-bmin[2])/tileDim) + 1
	log.Info("tile grid", zap.Int32("width", tw), zap.Int32("height", th))

	g := &mesher.Geometry{SolidVerts: mesh.Verts, SolidTris: mesh.Tris}
	b := tileBuilder{
		cfg:   cfg,
		mapID: mapID,
		orig:  bmin,
		ymin:  bmin[1],
		ymax:  bmax[1],
		geo:   g,
		log:   log,
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	type job struct{ x, y int32 }
	jobs := make(chan job)
	built := make(chan bool, int(tw*th))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				ok, err := b.buildTile(j.x, j.y)
				if err != nil {
					log.Error("tile failed",
						zap.Int32("x", j.x), zap.Int32("y", j.y), zap.Error(err))
				}
				built <- ok && err == nil
			}
		}()
	}
	for y := int32(0); y < th; y++ {
		for x := int32(0); x < tw; x++ {
			jobs <- job{x, y}
		}
	}
	close(jobs)
	wg.Wait()
	close(built)

	nbuilt := 0
	for ok := range built {
		if ok {
			nbuilt++
		}
	}
	if nbuilt == 0 {
		return fmt.Errorf("no tiles produced")
	}

	if err := writeStoreParams(cfg.OutputDir, mapID, bmin, int32(nbuilt)); err != nil {
		return err
	}
	log.Info("done", zap.Int("tiles", nbuilt))
	return nil
}

type tileBuilder struct {
	cfg   *config.Config
	mapID uint32
	orig  [3]float32
	ymin  float32
	ymax  float32
	geo   *mesher.Geometry
	log   *zap.Logger
}

// buildTile meshes and packs one tile of the grid. Returns false without an
// error when the tile holds no walkable surface.
func (b *tileBuilder) buildTile(tx, ty int32) (bool, error) {
	rc := b.cfg.Build.ToRunConfig()
	rc.BMin = [3]float32{
		b.orig[0] + float32(tx)*config.GridSize,
		b.ymin,
		b.orig[2] + float32(ty)*config.GridSize,
	}
	rc.BMax = [3]float32{
		rc.BMin[0] + config.GridSize,
		b.ymax,
		rc.BMin[2] + config.GridSize,
	}

	var offMesh []mesher.OffMeshConnection
	if b.cfg.OffMeshFile != "" {
		var err error
		offMesh, err = mesher.LoadOffMeshConnections(b.cfg.OffMeshFile, b.mapID, uint32(tx), uint32(ty))
		if err != nil {
			return false, fmt.Errorf("off-mesh connections: %w", err)
		}
	}

	p := mesher.NewPipeline(b.log)
	pmesh, dmesh, err := p.BuildTile(rc, b.geo)
	if err != nil {
		return false, err
	}
	if pmesh == nil || pmesh.NPolys == 0 {
		return false, nil
	}

	params := &tile.CreateParams{
		Verts:     pmesh.Verts[:pmesh.NVerts*3],
		VertCount: pmesh.NVerts,
		Polys:     pmesh.Polys[:pmesh.NPolys*2*pmesh.NVP],
		PolyFlags: pmesh.Flags[:pmesh.NPolys],
		PolyAreas: pmesh.Areas[:pmesh.NPolys],
		PolyCount: pmesh.NPolys,
		Nvp:       pmesh.NVP,

		DetailMeshes:    dmesh.Meshes[:dmesh.NMeshes*4],
		DetailVerts:     dmesh.Verts[:dmesh.NVerts*3],
		DetailVertCount: dmesh.NVerts,
		DetailTris:      dmesh.Tris[:dmesh.NTris*4],
		DetailTriCount:  dmesh.NTris,

		TileX:          tx,
		TileY:          ty,
		TileLayer:      0,
		BMin:           rc.BMin,
		BMax:           rc.BMax,
		WalkableHeight: float32(rc.WalkableHeight) * rc.CH,
		WalkableRadius: float32(rc.WalkableRadius) * rc.CS,
		WalkableClimb:  float32(rc.WalkableClimb) * rc.CH,
		CS:             rc.CS,
		CH:             rc.CH,
		BuildBVTree:    true,
	}
	fillOffMeshParams(params, offMesh)

	data, err := tile.Pack(params)
	if err != nil {
		return false, err
	}

	name := filepath.Join(b.cfg.OutputDir, fmt.Sprintf("%03d%02d%02d.mmtile", b.mapID, ty, tx))
	usesLiquids := len(b.geo.LiquidTris) > 0
	if err := writeTileFile(name, data, usesLiquids); err != nil {
		return false, err
	}
	b.log.Info("tile written",
		zap.String("file", name),
		zap.Int("size", len(data)),
		zap.Int32("polys", pmesh.NPolys))
	return true, nil
}

func fillOffMeshParams(params *tile.CreateParams, cons []mesher.OffMeshConnection) {
	if len(cons) == 0 {
		return
	}
	n := int32(len(cons))
	params.OffMeshConCount = n
	params.OffMeshConVerts = make([]float32, 0, n*6)
	params.OffMeshConRad = make([]float32, n)
	params.OffMeshConFlags = make([]uint16, n)
	params.OffMeshConAreas = make([]uint8, n)
	params.OffMeshConDir = make([]uint8, n)
	for i, c := range cons {
		params.OffMeshConVerts = append(params.OffMeshConVerts,
			c.Start[0], c.Start[1], c.Start[2],
			c.End[0], c.End[1], c.End[2])
		params.OffMeshConRad[i] = c.Radius
		params.OffMeshConFlags[i] = 0xff
		params.OffMeshConAreas[i] = 0xff
		params.OffMeshConDir[i] = 1
	}
}

func writeTileFile(name string, data []byte, usesLiquids bool) error {
	w := binio.NewWriterSize(20 + len(data))
	hdr := tile.NewFileHeader(len(data), usesLiquids)
	hdr.Encode(w)
	w.WriteUint8s(data)
	return os.WriteFile(name, w.Bytes(), 0o644)
}

func writeStoreParams(dir string, mapID uint32, orig [3]float32, maxTiles int32) error {
	p := tile.StoreParams{
		Orig:       orig,
		TileWidth:  config.GridSize,
		TileHeight: config.GridSize,
		MaxTiles:   maxTiles,
		MaxPolys:   1 << tile.PolyBits,
	}
	w := binio.NewWriter()
	p.Encode(w)
	name := filepath.Join(dir, fmt.Sprintf("%03d.mmap", mapID))
	return os.WriteFile(name, w.Bytes(), 0o644)
}
