package timeoutwars

const (
	muteTemplate     = "%s was silenced by the will of the people for %d minutes."
	deletedTemplate  = "%s deleted a message marked for silence and was muted for %d minutes."
	immunityTemplate = "%s is immune for another %d seconds."
)
