package asynctools

// Version is the semantic version of the asynctools module.
const Version = "3.0.0-rc.2"
