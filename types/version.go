package types

// Version is the coalesce release version.
const Version = "0.1.0"
