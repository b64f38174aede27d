// Package fcm implements the Android-native GCM/FCM registration flow used
// by the Rust+ companion app: device check-in against Google's check-in
// service, Firebase installation auth, and push token registration.
//
// It also defines the listener boundary through which a persistent push
// transport delivers pairing notifications. The MCS wire protocol itself is
// supplied by a separate transport implementation plugged into Listener.
//
// Usage:
//
//	identity, err := fcm.CheckIn(ctx, httpClient)
//	auth, err := fcm.RequestInstallation(ctx, httpClient, fcm.DefaultAppConfig())
//	token, err := fcm.Register(ctx, httpClient, identity, auth, fcm.DefaultAppConfig(), nil)
package fcm
