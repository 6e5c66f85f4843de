package issue

// Category groups findings for presentation, with the WCAG guidance users
// are pointed to.
type Category struct {
	Name     string
	Link     string
	LinkText string
	Summary  string
}

var (
	Headers = Category{
		Name:     "Header Errors",
		Link:     "https://www.w3.org/WAI/tutorials/page-structure/headings/",
		LinkText: "WCAG headings guidelines",
		Summary: "Your header structure does not adhere to WCAG guidelines for page organization. " +
			"Properly structured headers communicate content hierarchy and let assistive technologies, " +
			"like screen readers, navigate efficiently.",
	}
	AltText = Category{
		Name:     "Alt Text Errors",
		Link:     "https://www.w3.org/TR/WCAG20-TECHS/H37.html",
		LinkText: "WCAG alt-text guidelines",
		Summary: "Your images lack appropriate alternative text. Alternative text communicates the purpose " +
			"of an image to users who cannot see it, such as those using screen readers or when images fail to load.",
	}
	Contrast = Category{
		Name:     "Contrast Errors",
		Link:     "https://www.w3.org/WAI/WCAG21/Understanding/contrast-minimum.html",
		LinkText: "WCAG text color contrast guidelines",
		Summary: "Text in your images does not meet WCAG guidelines for color contrast. Sufficient contrast " +
			"keeps text readable for users with visual impairments or color perception differences.",
	}
	Transparency = Category{
		Name:     "Transparency Errors",
		Link:     "https://www.w3.org/WAI/WCAG21/Understanding/use-of-color.html",
		LinkText: "WCAG transparency guidelines",
		Summary: "Your images do not meet WCAG guidelines for color transparency. Not all users perceive " +
			"colors in the same way, and transparent regions take on whatever background the reader uses.",
	}
)

// Categories lists every category in display order.
var Categories = []Category{Headers, AltText, Contrast, Transparency}
