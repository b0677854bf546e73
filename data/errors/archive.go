package errors

func ArchiveUnreadable(err error, path string) error {
	return newError(err, "unable to read archive '%s'", path)
}

func StoreUnavailable(err error, name string) error {
	return newError(err, "snapshot store '%s' unavailable", name)
}

func ConfigInvalid(err error, source string) error {
	return newError(err, "invalid configuration in '%s'", source)
}
