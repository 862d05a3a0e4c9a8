package mail

import "errors"

var errMailerPanic = errors.New("mail: mailer panicked")
