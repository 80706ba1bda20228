package common

// PackageName is used as the metrics namespace and the default log service tag.
const PackageName = "secure-notes-provisioner"

// Version is set at build time via -ldflags.
var Version = "dev"
