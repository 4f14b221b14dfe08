// Package settings claims a persistent device instance for a virtual device.
//
// Device instances live in a shared settings service under
// Settings/Devices/virtual_<id>/ClassAndVrmInstance with values of the form
// "<class>:<instance>". The Negotiator asks a Collaborator to ensure the
// setting exists with the default "<class>:100" and extracts the instance
// from whatever the collaborator replies.
//
// Two collaborators are provided:
//
//   - BusClient calls AddSettings on com.victronenergy.settings
//   - SQLiteStore keeps settings in a local SQLite file and allocates
//     instances itself, for hosts without a settings service
//
// The reply shape differs between a setting that already existed and one
// that was just created. Extraction tries each known shape in a fixed order;
// a reply matching neither is a degraded outcome, not an error.
package settings
