package common

import (
	"fmt"
	"time"
)

// Product prefixes of the supported land-cover collections
const (
	// CollectionIOLulcAnnual is the Impact Observatory 9-class annual land-cover collection
	CollectionIOLulcAnnual = "io-lulc-annual-v02"

	// ProductPrefix is the prefix of every exported raster file
	ProductPrefix = "io_land_cover"
)

// DateFormat is the date layout encoded in the exported filenames
const DateFormat = "20060102"

// ProductFileName returns the name of the raster exported for the given
// acquisition date and zero-based slice index, e.g. io_land_cover_20210615_2.tif
func ProductFileName(date time.Time, index int) string {
	return fmt.Sprintf("%s_%s_%d.tif", ProductPrefix, date.Format(DateFormat), index)
}
