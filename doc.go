// Package cia402 is a device profile engine for servo drives following the
// CiA402 motion control profile.
//
// The engine is split in several packages :
//   - od : field table, vendor object indexes and value encoding
//   - pdo : process data mapping negotiation and the resulting mapping table
//   - access : typed field access, through the process image or confirmed object access
//   - state : status word decoding and control word sequencing
//   - units : conversion of raw counts into physical units
//   - drive : the driver composing all of the above
//
// This root package holds the contract of the fieldbus master collaborator
// and the error kinds shared by all packages.
package cia402
