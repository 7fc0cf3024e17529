package templates

// LineplotTemplate stacks one axis per metric, sharing the x column.
const LineplotTemplate = `% Generated on {{.GeneratedDate}}
% Source: {{.Source}}
\documentclass{standalone}
\usepackage{pgfplots}
\pgfplotsset{compat=1.17}
\begin{document}
\begin{tikzpicture}
\begin{groupplot}[
group style={group size=1 by {{len .Axes}}, vertical sep=1.5cm},
width=12cm,
height=5cm,
xlabel={ {{.XLabel}} },
ymajorgrids,
grid style=dashed,
legend pos=outer north east,
legend style={font=\small},
]
{{range .Axes}}
\nextgroupplot[title={ {{$.Title}} }, ylabel={ {{.YLabel}} }, ymin={{.YMin}}, ymax={{.YMax}}]
{{range .Series}}
\addplot+[{{.Style}}]
  coordinates {
{{range .Coordinates}}    {{.}}
{{end}}  };
\addlegendentry{ {{.LegendEntry}} }
{{end}}{{end}}
\end{groupplot}
\end{tikzpicture}
\end{document}
`

// ScatterTemplate draws one mark-only series per group.
const ScatterTemplate = `% Generated on {{.GeneratedDate}}
% Source: {{.Source}}
\documentclass{standalone}
\usepackage{pgfplots}
\pgfplotsset{compat=1.17}
\begin{document}
\begin{tikzpicture}
\begin{axis}[
title={ {{.Title}} },
xlabel={ {{.XLabel}} },
ylabel={ {{.YLabel}} },
width=12cm,
height=6cm,
xmin={{.XMin}}, xmax={{.XMax}},
ymin={{.YMin}}, ymax={{.YMax}},
grid=major,
grid style=dashed,
legend pos=outer north east,
legend style={font=\small},
]
{{range .Series}}
\addplot+[only marks, {{.Style}}]
  coordinates {
{{range .Coordinates}}    {{.}}
{{end}}  };
\addlegendentry{ {{.LegendEntry}} }
{{end}}
\end{axis}
\end{tikzpicture}
\end{document}
`

type Series struct {
	LegendEntry string
	Style       string
	Coordinates []string
}

type Axis struct {
	YLabel string
	YMin   interface{}
	YMax   interface{}
	Series []Series
}

type LineplotData struct {
	GeneratedDate string
	Source        string
	Title         string
	XLabel        string
	Axes          []Axis
}

type ScatterData struct {
	GeneratedDate string
	Source        string
	Title         string
	XLabel        string
	YLabel        string
	XMin, XMax    interface{}
	YMin, YMax    interface{}
	Series        []Series
}
