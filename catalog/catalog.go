// Package catalog holds the character models offered by the 3D viewer.
// The records are compiled into the application rather than stored in
// the database, so the consistency verifier reads them from here.
package catalog

// A Character is one selectable 3D mascot.
type Character struct {
	Name      string
	ModelPath string
	MTLPath   string // empty for self-contained formats such as glb
	Thumbnail string
}

// Characters lists every mascot the viewer can display.
var Characters = []Character{
	{
		Name:      "sobacchi",
		ModelPath: "models/sobacchi.obj",
		MTLPath:   "models/sobacchi.mtl",
		Thumbnail: "images/other/sobacchi_thumb.png",
	},
	{
		Name:      "kokucchi",
		ModelPath: "models/kokucchi.obj",
		MTLPath:   "models/kokucchi.mtl",
		Thumbnail: "images/other/kokucchi_thumb.png",
	},
	{
		Name:      "omocchi",
		ModelPath: "models/omocchi.obj",
		MTLPath:   "models/omocchi.mtl",
		Thumbnail: "images/other/omocchi_thumb.png",
	},
	{
		Name:      "unicchi",
		ModelPath: "models/unicchi.glb",
		Thumbnail: "images/other/unicchi_thumb.png",
	},
	{
		Name:      "tofucchi",
		ModelPath: "models/tofucchi.obj",
		MTLPath:   "models/tofucchi.mtl",
		Thumbnail: "images/other/tofucchi_thumb.png",
	},
}
