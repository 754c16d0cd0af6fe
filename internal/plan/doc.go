// Package plan validates multi-season rotation plans written in CUE.
//
// A plan lists the crops a grower intends to sow on a field, one per season:
//
//	plan: north: {
//		field:    "north"
//		sequence: ["wheat", "sorghum", "chickpea", "wheat"]
//	}
//
// Check replays a plan through a rotation.History, asking for permission
// before every sowing and recording the harvest after it. The first crop
// that would be refused, or is not a rotation crop at all, is reported with
// its position in the CUE source.
package plan
