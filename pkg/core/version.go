package core

// Version is the SDK version reported to the platform during the token
// exchange and in the initiation message's source metadata.
const Version = "0.4.0"
