package fcm

// TokenCredential wraps the FCM push token.
type TokenCredential struct {
	Token string `json:"token"`
}

// Credentials is the full push credential bundle produced by a successful
// registration: the GCM device identity plus the FCM token registered
// against it. The token is only valid together with the identity it was
// issued for.
type Credentials struct {
	GCM DeviceIdentity  `json:"gcm"`
	FCM TokenCredential `json:"fcm"`
}
