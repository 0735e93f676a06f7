package processor

// TasselledCapBands names the output components of the tasselled cap
// transformation in coefficient row order.
var TasselledCapBands = []string{"brightness", "greenness", "wetness", "fourth", "fifth", "sixth"}

// TasselledCapTM holds the Crist (1985) tasselled cap coefficients for
// Landsat TM reflectance factor data. Rows follow TasselledCapBands;
// columns expect the input bands ordered blue, green, red, nir, swir1,
// swir2 (TM bands 1, 2, 3, 4, 5, 7).
var TasselledCapTM = [][]float64{
	{0.2043, 0.4158, 0.5524, 0.5741, 0.3124, 0.2303},
	{-0.1603, -0.2819, -0.4934, 0.7940, -0.0002, -0.1446},
	{0.0315, 0.2021, 0.3102, 0.1594, -0.6806, -0.6109},
	{-0.2117, -0.0284, 0.1302, -0.1007, 0.6529, -0.7078},
	{-0.8669, -0.1835, 0.3856, 0.0408, -0.1132, 0.2272},
	{0.3677, -0.8200, 0.4354, 0.0518, -0.0066, -0.0104},
}
