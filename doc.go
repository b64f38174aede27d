// Package companion links a third-party client to the Rust+ companion
// push-notification infrastructure.
//
// It drives the full registration handshake: Firebase installation auth,
// Android device check-in, FCM push registration, Expo push-token bridging,
// a browser-mediated pairing session against the Facepunch companion site,
// and persistence of the resulting credential bundle. The fcm subpackage
// holds the device-impersonation pieces; this package holds the
// orchestration, external exchanges, pairing server, and config store.
package companion
