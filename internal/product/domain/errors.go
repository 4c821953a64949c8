package domain

import "errors"

var ErrProductNotFound = errors.New("product_not_found")
