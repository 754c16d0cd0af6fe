// Package rotation implements the crop-sequence rule engine.
//
// A History holds the two most recently harvested crops of one field and
// answers whether a proposed crop may be sown next. The rule set is fixed:
//
//   - Fewer than two harvests recorded: only cereals may be sown.
//   - Two cereals harvested back to back: only a legume may be sown.
//   - Any other history: only cereals may be sown.
//
// Recognized crops form a closed set of two families:
//
//	cereal: sorghum, wheat
//	legume: mungbean, chickpea
//
// Crop names are compared case-insensitively.
//
// # Error Policy
//
// AllowsSowing fails with *UnknownCropError for a name outside the
// recognized set; such a name means the caller assigned a crop the engine
// cannot reason about. RecordHarvest ignores unknown names and leaves the
// history untouched, so a harvest of a fallow or cover marker never corrupts
// rotation memory.
//
// A History is owned by exactly one field and is not safe for concurrent use.
package rotation
